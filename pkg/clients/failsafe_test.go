package clients

import (
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go"
)

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_NormalizesConfigToBoundRetries(t *testing.T) {
	cfg := HTTPExecutorConfig{
		MaxRetries: -3,
		BaseDelay:  0,
		MaxDelay:   0,
	}
	policy := NewHTTPRetryPolicy(cfg)

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("network partition")
	})
	if err == nil {
		t.Fatal("expected request to fail")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected bounded single attempt with negative retries, got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_RetriesUpToConfiguredLimit(t *testing.T) {
	cfg := HTTPExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		ShouldRetry: func(_ *http.Response, err error) bool {
			return err != nil
		},
	}
	policy := NewHTTPRetryPolicy(cfg)

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (*http.Response, error) {
		count := atomic.AddInt32(&attempts, 1)
		if count < 3 {
			return nil, errors.New("dns lag")
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected exactly 3 attempts (1 + 2 retries), got %d", got)
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	if !DefaultShouldRetry(nil, errors.New("refused")) {
		t.Fatal("expected errors to be retryable")
	}
	if !DefaultShouldRetry(&http.Response{StatusCode: http.StatusBadGateway}, nil) {
		t.Fatal("expected 502 to be retryable")
	}
	if !DefaultShouldRetry(&http.Response{StatusCode: http.StatusTooManyRequests}, nil) {
		t.Fatal("expected 429 to be retryable")
	}
	if DefaultShouldRetry(&http.Response{StatusCode: http.StatusNotFound}, nil) {
		t.Fatal("expected 404 to be non-retryable")
	}
	if DefaultShouldRetry(&http.Response{StatusCode: http.StatusOK}, nil) {
		t.Fatal("expected 200 to be non-retryable")
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPExecutor_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	cfg := HTTPExecutorConfig{
		MaxRetries:     0,
		BaseDelay:      time.Millisecond,
		MaxDelay:       time.Millisecond,
		CircuitBreaker: true,
		BreakerDelay:   time.Minute,
	}
	executor := NewHTTPExecutor(cfg)

	var attempts int32
	fail := func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("connection refused")
	}

	for i := 0; i < 10; i++ {
		_, _ = executor.Get(fail)
	}
	before := atomic.LoadInt32(&attempts)

	// The breaker is open now; further calls fail fast without reaching
	// the request function.
	_, err := executor.Get(fail)
	if err == nil {
		t.Fatal("expected open breaker to reject the call")
	}
	if got := atomic.LoadInt32(&attempts); got != before {
		t.Fatalf("expected no further attempts through an open breaker, got %d extra", got-before)
	}
}
