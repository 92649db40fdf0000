package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned for anything that cannot be probed with an HTTP GET.
var ErrInvalidURL = errors.New("invalid url")

// Normalize parses rawURL and returns the form used as a target's identity:
//  1. surrounding whitespace is trimmed
//  2. scheme and host are lowercased
//  3. default ports (80 for http, 443 for https) are stripped
//  4. the fragment is removed
//
// Path, query and a trailing slash are kept as given; they are significant
// to the server being probed.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q must be an absolute http or https url", ErrInvalidURL, rawURL)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, rawURL)
	}

	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		u.Host = strings.TrimSuffix(u.Host, ":"+u.Port())
	}

	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}
