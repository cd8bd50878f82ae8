package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Decision is the outcome of evaluating one attempt.
type Decision int

const (
	// Stop ends the dispatch with the current response or error.
	Stop Decision = iota
	// Retry schedules another attempt after a backoff delay.
	Retry
	// RetryHangUp schedules the single retry granted to a hung-up connection.
	RetryHangUp
	// StopHangUp ends the dispatch after a second hang-up.
	StopHangUp
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case RetryHangUp:
		return "retry_hangup"
	case StopHangUp:
		return "stop_hangup"
	default:
		return "stop"
	}
}

// Retrying reports whether the decision schedules another attempt.
func (d Decision) Retrying() bool { return d == Retry || d == RetryHangUp }

var retryableStatus = map[int]struct{}{
	408: {}, 409: {}, 425: {}, 500: {}, 502: {}, 503: {}, 504: {},
}

// IsRetryableStatus reports whether status belongs to the retryable set.
func IsRetryableStatus(status int) bool {
	_, ok := retryableStatus[status]
	return ok
}

// StatusDecision evaluates an attempt that produced a response.
// attempt is the number of retries already made, max the configured budget.
func StatusDecision(status int, ok bool, attempt, max int) Decision {
	if !ok && attempt < max && IsRetryableStatus(status) {
		return Retry
	}
	return Stop
}

// ErrorDecision evaluates an attempt that failed with err. hungUp reports
// whether the one-shot hang-up retry has already been spent.
func ErrorDecision(err error, attempt, max int, hungUp bool) Decision {
	if err == nil {
		return Stop
	}
	if errors.Is(err, context.Canceled) {
		return Stop
	}
	if IsUnretryable(err) {
		return Stop
	}
	if IsHangUp(err) {
		if hungUp {
			return StopHangUp
		}
		return RetryHangUp
	}
	if attempt < max {
		return Retry
	}
	return Stop
}

var unretryablePatterns = []string{
	"econnrefused",
	"connection refused",
	"too many redirects",
	"maximum number of redirects",
	"err_too_many_redirects",
	"enotfound",
	"eai_again",
	"no such host",
	"getaddrinfo",
	"enetunreach",
	"network is unreachable",
	"err_internet_disconnected",
	"network is down",
}

var hangUpPatterns = []string{
	"socket hang up",
	"server closed idle connection",
	"unexpected eof",
	"empty reply from server",
}

// IsUnretryable reports whether err is a failure that another attempt cannot fix:
// refused connections, redirect loops, DNS failures and a disconnected network.
func IsUnretryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.ENETDOWN) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return true
	}
	return containsAny(err.Error(), unretryablePatterns)
}

// IsHangUp reports whether err means the peer closed the socket before
// sending a response.
func IsHangUp(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	if strings.HasSuffix(msg, ": EOF") || msg == "EOF" {
		return true
	}
	return containsAny(msg, hangUpPatterns)
}

func containsAny(msg string, patterns []string) bool {
	msg = strings.ToLower(msg)
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
