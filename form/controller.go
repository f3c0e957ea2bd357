// Package form drives one sign-in or sign-up form submission from raw input
// to a terminal state and its side effects.
package form

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ory-auth-gate/auth"
	"ory-auth-gate/session"
)

// HomePath is where a successful submission navigates.
const HomePath = "/"

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 10 * time.Second

const (
	MsgSignInFailed = "Invalid email or password"
	MsgSignUpFailed = "Unable to create account"
	MsgSignedIn     = "Signed in successfully"
	MsgSignedUp     = "Account created"
)

// ErrSubmissionInFlight is returned when a form is submitted again before its
// previous submission finished.
var ErrSubmissionInFlight = errors.New("form submission already in flight")

// Authenticator is the part of the session client a form needs.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (session.Session, error)
	SignUp(ctx context.Context, email, password string) (session.Session, error)
}

// Config selects the flow and the optional parts of a form.
type Config struct {
	Flow                   auth.Flow
	RequireConfirmPassword bool
	RequirePrivacyConsent  bool
	ShowPasswordToggle     bool
	// Timeout bounds the provider call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is the outcome of one Submit.
type Result struct {
	State       State
	Submission  SubmissionState
	FieldErrors auth.FieldErrors
	Session     session.Session
	// Err is the underlying failure, for logging only.
	Err error
}

// Controller is the Auth Form Controller for one flow. It is safe for
// concurrent use; submissions are serialized per form id.
type Controller struct {
	cfg       Config
	auth      Authenticator
	validator *auth.Validator
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}

	// OnTransition, when set, observes every state change.
	OnTransition func(formID string, from, to State)
}

// New builds a Controller. A nil validator or logger gets a default.
func New(cfg Config, a Authenticator, v *auth.Validator, logger *slog.Logger) *Controller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if v == nil {
		v = auth.NewValidator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:       cfg,
		auth:      a,
		validator: v,
		logger:    logger.With(slog.String("flow", string(cfg.Flow))),
		inFlight:  make(map[string]struct{}),
	}
}

// Config returns the form configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// NewFormID returns an identifier for a freshly rendered form.
func NewFormID() string {
	return uuid.NewString()
}

// Pending reports whether formID has a submission in flight.
func (c *Controller) Pending(formID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[formID]
	return ok
}

// Submit runs one submission for formID. Validation failures and provider
// failures are reported through the Result with a nil error. The error is
// non-nil only when the submission did not run (ErrSubmissionInFlight) or was
// abandoned because ctx ended while the provider call was outstanding; in
// that case fx is never called.
func (c *Controller) Submit(ctx context.Context, formID string, creds auth.Credentials, fx Effects) (Result, error) {
	if formID == "" {
		formID = NewFormID()
	}
	if !c.acquire(formID) {
		c.logger.DebugContext(ctx, "duplicate submission ignored", slog.String("form_id", formID))
		return Result{State: Submitting, Submission: SubmissionState{Pending: true}}, ErrSubmissionInFlight
	}
	defer c.release(formID)

	c.transition(formID, Idle, Validating)
	creds = creds.Normalized()
	rules := auth.Rules{
		RequireConfirmPassword: c.cfg.RequireConfirmPassword,
		RequirePrivacyConsent:  c.cfg.RequirePrivacyConsent,
	}
	if err := c.validator.Validate(creds, c.cfg.Flow, rules); err != nil {
		c.transition(formID, Validating, Failed)
		res := Result{State: Failed, Err: err}
		var verr *auth.ValidationError
		if errors.As(err, &verr) {
			res.FieldErrors = verr.Fields
		}
		return res, nil
	}

	c.transition(formID, Validating, Submitting)
	sess, err := c.call(ctx, creds)

	if ctx.Err() != nil {
		c.logger.InfoContext(ctx, "submission abandoned, result discarded",
			slog.String("form_id", formID),
			slog.Bool("succeeded", err == nil),
		)
		return Result{State: Idle}, ctx.Err()
	}

	if err != nil {
		c.transition(formID, Submitting, Failed)
		msg := c.failureMessage()
		c.logger.WarnContext(ctx, "submission failed",
			slog.String("form_id", formID),
			slog.Any("error", err),
		)
		fx.Notify(Notice{Level: LevelError, Message: msg})
		return Result{
			State:      Failed,
			Submission: SubmissionState{ErrorMessage: msg},
			Err:        err,
		}, nil
	}

	c.transition(formID, Submitting, Success)
	fx.Notify(Notice{Level: LevelSuccess, Message: c.successMessage()})
	fx.Navigate(HomePath)
	return Result{State: Success, Session: sess}, nil
}

// call runs the provider operation on a context that outlives the caller so an
// abandoned submission still completes and keeps the session cache coherent.
func (c *Controller) call(ctx context.Context, creds auth.Credentials) (session.Session, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	if c.cfg.Flow == auth.FlowSignUp {
		return c.auth.SignUp(callCtx, creds.Email, creds.Password)
	}
	return c.auth.SignIn(callCtx, creds.Email, creds.Password)
}

func (c *Controller) acquire(formID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[formID]; busy {
		return false
	}
	c.inFlight[formID] = struct{}{}
	return true
}

func (c *Controller) release(formID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, formID)
}

func (c *Controller) transition(formID string, from, to State) {
	c.logger.Debug("form state", slog.String("form_id", formID), slog.String("from", from.String()), slog.String("to", to.String()))
	if c.OnTransition != nil {
		c.OnTransition(formID, from, to)
	}
}

func (c *Controller) failureMessage() string {
	if c.cfg.Flow == auth.FlowSignUp {
		return MsgSignUpFailed
	}
	return MsgSignInFailed
}

func (c *Controller) successMessage() string {
	if c.cfg.Flow == auth.FlowSignUp {
		return MsgSignedUp
	}
	return MsgSignedIn
}
