// CLAUDE:SUMMARY URL safety checks (SSRF prevention) and bounded body reads for the fetcher.
package fetch

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// ErrSSRF is returned when a URL targets a private or loopback address.
var ErrSSRF = errors.New("fetch: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("fetch: only http and https schemes are allowed")

// ErrBodyTooLarge is returned when a response exceeds the configured cap.
var ErrBodyTooLarge = errors.New("fetch: response body exceeds limit")

// NewURLValidator returns a validator enforcing http(s) schemes and,
// unless allowPrivate is set, rejecting private and loopback targets.
// DNS resolution is performed to catch internal hostnames. Sessions
// driving a local test server run with allowPrivate or no validator
// at all; crawlers pointed at the open web run with it off.
func NewURLValidator(allowPrivate bool) func(string) error {
	return func(rawURL string) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("fetch: invalid URL: %w", err)
		}
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return ErrUnsafeScheme
		}
		host := u.Hostname()
		if host == "" {
			return fmt.Errorf("fetch: URL has no host")
		}
		if allowPrivate {
			return nil
		}

		if ip := net.ParseIP(host); ip != nil {
			if isPrivateIP(ip) {
				return ErrSSRF
			}
			return nil
		}

		addrs, err := net.LookupHost(host)
		if err != nil {
			// DNS failure: let the connection attempt surface the real
			// error instead of masking it here.
			return nil
		}
		for _, a := range addrs {
			if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
				return ErrSSRF
			}
		}
		return nil
	}
}

// limitedReadAll reads at most maxBytes from r, failing with
// ErrBodyTooLarge rather than truncating silently.
func limitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes max)", ErrBodyTooLarge, maxBytes)
	}
	return data, nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fc00::/7",
		"169.254.0.0/16",
		"::1/128",
	}
	for _, pr := range privateRanges {
		_, cidr, err := net.ParseCIDR(pr)
		if err != nil {
			continue
		}
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
