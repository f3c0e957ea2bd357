package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Profile is the minimal user record shown in the user menu.
type Profile struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
}

// Identity is the locally cached view of the caller's session. It is owned by
// the identity provider; a copy held here may be stale.
type Identity struct {
	Authenticated bool     `json:"authenticated"`
	UserID        string   `json:"userId,omitempty"`
	Profile       *Profile `json:"profile,omitempty"`
}

// Anonymous is the identity of a caller without a session.
func Anonymous() Identity {
	return Identity{}
}

// Email returns the profile email, or "".
func (i Identity) Email() string {
	if i.Profile == nil {
		return ""
	}
	return i.Profile.Email
}

// DisplayName prefers the profile name and falls back to the email.
func (i Identity) DisplayName() string {
	if i.Profile != nil && strings.TrimSpace(i.Profile.Name) != "" {
		return i.Profile.Name
	}
	return i.Email()
}

// Initial is the avatar fallback: the first letter of the email, upper-cased.
func (i Identity) Initial() string {
	email := i.Email()
	if email == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(email)
	return string(unicode.ToUpper(r))
}
