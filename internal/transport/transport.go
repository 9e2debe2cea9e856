package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// NewHTTPClient builds the outbound client shared by the token exchanger and
// the mailbox reader. proxyURL may be empty.
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("new http client: invalid upstream proxy %q", proxyURL)
		}
		base.Proxy = http.ProxyURL(parsed)
	}

	return &http.Client{
		Transport: base,
		Timeout:   timeout,
	}, nil
}
