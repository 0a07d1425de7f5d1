package domain

import (
	"net/url"
	"strings"
)

// NormalizeURL returns the canonical comparison key for a URL:
//   - surrounding whitespace is removed
//   - a missing scheme becomes https
//   - scheme and host are lowercased
//   - trailing slashes of the path are stripped; a bare root path is dropped
//
// NormalizeURL(NormalizeURL(u)) == NormalizeURL(u) for every input.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = qualifyScheme(s)

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		// Not a hierarchical URL: keep it verbatim so the result stays stable.
		return s
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")

	out := u.String()
	if u.RawQuery == "" && u.Fragment == "" {
		out = strings.TrimRight(out, "/")
	}
	return out
}

// ValidateURL checks that raw is a syntactically valid http or https URL.
func ValidateURL(raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return &ValidationError{Field: "url", Reason: "url is required"}
	}
	u, err := url.Parse(s)
	if err != nil {
		return &ValidationError{Field: "url", Reason: "url is malformed"}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return &ValidationError{Field: "url", Reason: "url must use http or https"}
	}
	if u.Hostname() == "" {
		return &ValidationError{Field: "url", Reason: "url has no host"}
	}
	return nil
}

// IsValidURL reports whether raw, scheme-qualified when it has no scheme,
// is a valid http or https URL. Stored URLs keep the user's spelling, so
// "example.com" is valid here while ValidateURL rejects it.
func IsValidURL(raw string) bool {
	_, err := PrepareURL(raw)
	return err == nil
}

// QualifyURL trims raw and adds https:// when it carries no scheme.
func QualifyURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	return qualifyScheme(s)
}

// PrepareURL validates user input, scheme-qualifying it first so that
// "example.com" is accepted. It returns the address to store.
func PrepareURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &ValidationError{Field: "url", Reason: "url is required"}
	}
	s = qualifyScheme(s)
	if err := ValidateURL(s); err != nil {
		return "", err
	}
	return s, nil
}

func qualifyScheme(s string) string {
	switch {
	case hasScheme(s):
		return s
	case strings.HasPrefix(s, "//"):
		return "https:" + s
	default:
		return "https://" + s
	}
}

// hasScheme reports whether s starts with "scheme://".
func hasScheme(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	for j, c := range s[:i] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}
