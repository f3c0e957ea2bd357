package form

// State is where a single submission is in its lifecycle.
type State int

const (
	Idle State = iota
	Validating
	Submitting
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a submission.
func (s State) Terminal() bool {
	return s == Success || s == Failed
}

// SubmissionState is what the form shows while and after submitting.
type SubmissionState struct {
	Pending      bool
	ErrorMessage string
}

// Level classifies a Notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a transient user-visible notification.
type Notice struct {
	Level   Level
	Message string
}

// Effects receives the side effects of a finished submission. Implementations
// decide how a navigation or notification is presented.
type Effects interface {
	Navigate(path string)
	Notify(n Notice)
}

// Recorder is an Effects that remembers what it was asked to do.
type Recorder struct {
	Navigations []string
	Notices     []Notice
}

func (r *Recorder) Navigate(path string) { r.Navigations = append(r.Navigations, path) }
func (r *Recorder) Notify(n Notice)      { r.Notices = append(r.Notices, n) }
