package repeat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"gotest.tools/v3/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{name: "nil", err: nil, kind: KindUnknown},
		{name: "timeout message", err: errors.New("Request Timeout"), kind: KindTimeout, retryable: true},
		{name: "network message", err: errors.New("network error"), kind: KindNetwork, retryable: true},
		{name: "dns message", err: errors.New("getaddrinfo ENOTFOUND grist.example"), kind: KindDNS, retryable: true},
		{name: "500", err: errors.New("500 Internal Server Error"), kind: KindServer, retryable: true},
		{name: "502", err: errors.New("status 502"), kind: KindServer, retryable: true},
		{name: "503", err: errors.New("503"), kind: KindServer, retryable: true},
		{name: "504", err: errors.New("gateway 504 timeout"), kind: KindTimeout, retryable: true},
		{name: "429", err: errors.New("429 Too Many Requests"), kind: KindRateLimited, retryable: true},
		{name: "401", err: errors.New("401 Unauthorized"), kind: KindUnknown},
		{name: "403", err: errors.New("403 Forbidden"), kind: KindUnknown},
		{name: "404", err: errors.New("404 Not Found"), kind: KindUnknown},
		{name: "digits inside a word", err: errors.New("id 15003 invalid"), kind: KindUnknown},
		{name: "deadline", err: fmt.Errorf("get: %w", context.DeadlineExceeded), kind: KindTimeout, retryable: true},
		{name: "cancelled", err: context.Canceled, kind: KindUnknown},
		{name: "connection refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), kind: KindNetwork, retryable: true},
		{
			name:      "dns error",
			err:       &url.Error{Op: "Get", URL: "https://x", Err: &net.DNSError{Err: "no such host", Name: "x"}},
			kind:      KindDNS,
			retryable: true,
		},
		{
			name:      "op error",
			err:       &url.Error{Op: "Get", URL: "https://x", Err: &net.OpError{Op: "read", Err: errors.New("boom")}},
			kind:      KindNetwork,
			retryable: true,
		},
		{name: "structured client error", err: kindError{kind: KindClient}, kind: KindClient},
		{name: "structured validation error", err: kindError{kind: KindValidation}, kind: KindValidation},
		{name: "structured server error", err: fmt.Errorf("wrapped: %w", kindError{kind: KindServer}), kind: KindServer, retryable: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, Classify(tc.err), tc.kind)
			assert.Equal(t, IsRetryable(tc.err), tc.retryable)
		})
	}
}
