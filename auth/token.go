package auth

import "strings"

// LooksLikeJWT reports whether a bearer value has the three-part compact
// serialization of a JWT. Provider session tokens never contain dots.
func LooksLikeJWT(s string) bool {
	return strings.Count(s, ".") == 2
}
