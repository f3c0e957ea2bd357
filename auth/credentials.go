// Package auth holds the types shared by the authentication flows: the
// credential payload, the flow discriminator, the cached session identity and
// the error taxonomy. It has no network dependencies.
package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Flow tells the identity provider which credential operation is requested.
// Sign-in and sign-up share one call shape.
type Flow string

const (
	FlowSignIn Flow = "signIn"
	FlowSignUp Flow = "signUp"
)

// ParseFlow accepts the wire names of the two flows.
func ParseFlow(s string) (Flow, error) {
	switch Flow(s) {
	case FlowSignIn, FlowSignUp:
		return Flow(s), nil
	default:
		return "", fmt.Errorf("unknown flow %q", s)
	}
}

// Credentials is built fresh for every submission and dropped once the
// provider call returns. Never log it.
type Credentials struct {
	Email           string `form:"email" validate:"required,email,dotted_domain"`
	Password        string `form:"password" validate:"required"`
	ConfirmPassword string `form:"confirmPassword" validate:"-"`
	PrivacyConsent  bool   `form:"privacyConsent" validate:"-"`
}

// Normalized trims surrounding whitespace from the email. Passwords are taken
// verbatim.
func (c Credentials) Normalized() Credentials {
	c.Email = strings.TrimSpace(c.Email)
	return c
}

// Rules switches the optional sign-up checks on.
type Rules struct {
	RequireConfirmPassword bool
	RequirePrivacyConsent  bool
}

// Field messages.
const (
	MsgEmailRequired    = "Email is required"
	MsgEmailInvalid     = "Enter a valid email address"
	MsgPasswordRequired = "Password is required"
	MsgConfirmRequired  = "Confirm your password"
	MsgPasswordMismatch = "Passwords do not match"
	MsgConsentRequired  = "You must accept the privacy policy"
)

// Validator checks credential shapes before anything is sent to the
// provider. Password policy is the provider's business.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator. It is safe for concurrent use.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("dotted_domain", dottedDomain); err != nil {
		panic(err)
	}
	return &Validator{validate: v}
}

// Validate returns nil or a *ValidationError keyed by form field name.
func (v *Validator) Validate(c Credentials, flow Flow, rules Rules) error {
	fields := FieldErrors{}

	if err := v.validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate credentials: %w", err)
		}
		for _, fe := range verrs {
			fields.add(fe.Field(), fieldMessage(fe))
		}
	}

	if flow == FlowSignUp {
		switch {
		case c.ConfirmPassword == "":
			if rules.RequireConfirmPassword {
				fields.add("confirmPassword", MsgConfirmRequired)
			}
		case v.validate.VarWithValue(c.ConfirmPassword, c.Password, "eqcsfield") != nil:
			fields.add("confirmPassword", MsgPasswordMismatch)
		}
		if rules.RequirePrivacyConsent && !c.PrivacyConsent {
			fields.add("privacyConsent", MsgConsentRequired)
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "email":
		if fe.Tag() == "required" {
			return MsgEmailRequired
		}
		return MsgEmailInvalid
	case "password":
		return MsgPasswordRequired
	default:
		return fe.Error()
	}
}

// dottedDomain requires the part after the last "@" to contain a dot that is
// neither its first nor its last character.
func dottedDomain(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	at := strings.LastIndexByte(s, '@')
	if at < 1 {
		return false
	}
	domain := s[at+1:]
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && !strings.HasSuffix(domain, ".")
}
