package probe

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

// ClientOptions configures the HTTP client shared by every probe.
type ClientOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	MaxRedirects       int
}

// NewClient builds the shared client. Its connection pool is reused across
// ticks and across targets.
func NewClient(opts ClientOptions) *http.Client {
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}
