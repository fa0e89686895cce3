package auth

import (
	"net/http"
	"strings"
)

const (
	// CookieName is the session cookie browsers send on the upgrade request.
	CookieName = "collab_session"
	queryParam = "token"
)

// CredentialFromRequest extracts the session token in order of preference:
// Authorization bearer header, token query parameter, then session cookie.
func CredentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.URL.Query().Get(queryParam); token != "" {
		return token
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}
