package terms

import (
	"net/url"
	"strings"
)

// Links builds candidate-facing terms URLs.
type Links struct {
	Canonical string
	Public    string
}

// TermsURL returns <base>/terms?token=<token>. The canonical base is used
// when forced or when the public base points at a local host, so a link sent
// from a developer machine still works for the recipient.
func (l Links) TermsURL(token string, forceCanonical bool) string {
	base := l.Public
	if forceCanonical || base == "" || isLocal(base) {
		base = l.Canonical
	}
	return strings.TrimRight(base, "/") + "/terms?token=" + url.QueryEscape(token)
}

func isLocal(base string) bool {
	u, err := url.Parse(base)
	if err != nil {
		return true
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".local")
}
