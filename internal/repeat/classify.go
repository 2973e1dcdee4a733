package repeat

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strings"
	"syscall"
)

// ErrorKind is the category of a failed operation, used to decide whether the
// operation is worth retrying.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTimeout
	KindNetwork
	KindDNS
	KindServer
	KindRateLimited
	KindClient
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindDNS:
		return "dns"
	case KindServer:
		return "server"
	case KindRateLimited:
		return "rate_limited"
	case KindClient:
		return "client"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors of this kind are transient.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindDNS, KindServer, KindRateLimited:
		return true
	default:
		return false
	}
}

// KindError is implemented by errors that know their own ErrorKind, for
// example the error returned by an HTTP client for a non-2xx response.
type KindError interface {
	error
	Kind() ErrorKind
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}

// Classify returns the ErrorKind of err. Structured errors are inspected
// first; errors that carry no structure are classified by their message.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var kindErr KindError
	if errors.As(err, &kindErr) {
		return kindErr.Kind()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return KindUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return KindNetwork
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}

	return classifyMessage(err.Error())
}

var (
	serverStatusPattern      = regexp.MustCompile(`\b(500|502|503|504)\b`)
	rateLimitedStatusPattern = regexp.MustCompile(`\b429\b`)
)

func classifyMessage(msg string) ErrorKind {
	msg = strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "enotfound"), strings.Contains(msg, "no such host"):
		return KindDNS
	case strings.Contains(msg, "network"),
		strings.Contains(msg, "econnreset"),
		strings.Contains(msg, "econnrefused"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"):
		return KindNetwork
	case serverStatusPattern.MatchString(msg):
		return KindServer
	case rateLimitedStatusPattern.MatchString(msg):
		return KindRateLimited
	default:
		return KindUnknown
	}
}
