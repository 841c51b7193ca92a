package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

const DefaultUserAgent = "Website-Connectivity-Monitor/1.0"

const connectionFailed = "Connection failed"

type HTTPChecker struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
}

// NewHTTPChecker returns a checker issuing GET requests bounded by timeout.
// Redirects are followed with the net/http default policy.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		Client:    &http.Client{Timeout: timeout},
		Timeout:   timeout,
		UserAgent: DefaultUserAgent,
	}
}

// Check issues one GET to target and classifies the result. Latency covers
// sending the request through reading the full body.
func (h *HTTPChecker) Check(ctx context.Context, target string) (out domain.Outcome) {
	defer func() {
		if v := recover(); v != nil {
			out = domain.Offline(-1, fmt.Sprintf("Unexpected error: %v", v))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.Offline(-1, err.Error())
	}
	req.Header.Set("User-Agent", h.UserAgent)

	start := time.Now()
	resp, err := h.Client.Do(req)
	if err != nil {
		return domain.Offline(-1, h.reason(err))
	}
	_, err = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	latency := time.Since(start).Seconds()
	if err != nil {
		// The server answered, so a broken body is not a connection failure.
		if h.isTimeout(err) {
			return domain.Offline(-1, h.timeoutReason())
		}
		return domain.Offline(-1, err.Error())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return domain.Online(latency)
	}
	return domain.Offline(latency, fmt.Sprintf("HTTP %d", resp.StatusCode))
}

// reason maps a transport failure to the message stored with the outcome.
func (h *HTTPChecker) reason(err error) string {
	if h.isTimeout(err) {
		return h.timeoutReason()
	}
	if isConnectionError(err) {
		return connectionFailed
	}
	return err.Error()
}

func (h *HTTPChecker) isTimeout(err error) bool {
	var ne net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
}

func (h *HTTPChecker) timeoutReason() string {
	return fmt.Sprintf("Timeout after %s", h.Timeout)
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}
