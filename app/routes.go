package app

import (
	"path"
	"strings"
)

// Fixed redirect targets.
const (
	HomePath = "/"
	AuthPath = "/auth"
)

// Routes classifies request paths as public or private.
type Routes struct {
	public []string
}

// NewRoutes builds a matcher over the public patterns. A pattern matches the
// path equal to it and every path below it; a pattern containing glob
// metacharacters is matched with path.Match instead.
func NewRoutes(public []string) Routes {
	patterns := make([]string, 0, len(public))
	for _, p := range public {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return Routes{public: patterns}
}

// IsPublic reports whether p is reachable without a session.
func (r Routes) IsPublic(p string) bool {
	p = path.Clean("/" + p)
	for _, pattern := range r.public {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, p string) bool {
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, p)
		return err == nil && ok
	}

	pattern = strings.TrimSuffix(pattern, "/")
	if pattern == "" {
		// "/" covers every path.
		return true
	}
	return p == pattern || strings.HasPrefix(p, pattern+"/")
}
