package sso

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tenup/docgate/internal/config"
	"github.com/tenup/docgate/internal/emailutil"
	"github.com/tenup/docgate/internal/ioutil"
	"github.com/tenup/docgate/internal/log"
	"github.com/tenup/docgate/internal/metrics"
	"github.com/tenup/docgate/internal/urlutil"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

// ErrVerificationFailed is returned when a session could not be confirmed
// by the SSO proxy, whatever the cause.
var ErrVerificationFailed = errors.New("session verification failed")

// Verifier confirms (nonce, email) pairs with the SSO proxy. Concurrent
// checks of the same pair share one proxy call and confirmed pairs are
// cached for a short while, so repeating a check is free.
type Verifier struct {
	proxyURL string
	client   *http.Client
	timeout  time.Duration
	retry    config.RetryConfig
	cache    *expirable.LRU[string, struct{}]
	group    singleflight.Group
	metrics  *metrics.Metrics
}

// Option configures a Verifier
type Option func(*Verifier)

// WithHTTPClient replaces the HTTP client used to reach the proxy
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		v.client = c
	}
}

// WithMetrics records verification outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// NewVerifier creates a verifier from the SSO settings
func NewVerifier(cfg config.SSOConfig, opts ...Option) *Verifier {
	v := &Verifier{
		proxyURL: cfg.ProxyURL,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout:  cfg.VerifyTimeout,
		retry:    cfg.Retry,
		cache:    expirable.NewLRU[string, struct{}](cfg.VerifiedCacheSize, nil, cfg.VerifiedCacheTTL),
	}
	if v.timeout <= 0 {
		v.timeout = config.DefaultVerifyTimeout
	}
	if v.retry.MaxAttempts < 1 {
		v.retry.MaxAttempts = 1
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func cacheKey(nonce, email string) string {
	return nonce + "\x00" + emailutil.Normalize(email)
}

// Verify returns nil when the proxy confirms the pair. Any other outcome,
// including a timeout, wraps ErrVerificationFailed.
func (v *Verifier) Verify(ctx context.Context, nonce, email string) error {
	if nonce == "" || email == "" {
		v.metrics.Verification(metrics.VerifyRejected, 0)
		return fmt.Errorf("%w: missing nonce or email", ErrVerificationFailed)
	}

	key := cacheKey(nonce, email)
	if _, ok := v.cache.Get(key); ok {
		v.metrics.Verification(metrics.VerifyCached, 0)
		return nil
	}

	// The shared call must not die with whichever caller started it
	callCtx := context.WithoutCancel(ctx)
	resultCh := v.group.DoChan(key, func() (any, error) {
		if _, ok := v.cache.Get(key); ok {
			return nil, nil
		}
		if err := v.verifyWithProxy(callCtx, nonce, email); err != nil {
			return nil, err
		}
		v.cache.Add(key, struct{}{})
		return nil, nil
	})

	select {
	case res := <-resultCh:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrVerificationFailed, ctx.Err())
	}
}

// Forget drops a cached confirmation so the next Verify asks the proxy again
func (v *Verifier) Forget(nonce, email string) {
	v.cache.Remove(cacheKey(nonce, email))
}

func (v *Verifier) verifyWithProxy(ctx context.Context, nonce, email string) error {
	target, err := urlutil.WithQuery(v.proxyURL, url.Values{
		"action": {actionVerify},
		"nonce":  {nonce},
		"email":  {email},
	})
	if err != nil {
		return fmt.Errorf("%w: building verification URL: %w", ErrVerificationFailed, err)
	}

	b := backoff.NewExponentialBackOff()
	if v.retry.InitialInterval > 0 {
		b.InitialInterval = v.retry.InitialInterval
	}

	start := time.Now()
	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, v.attempt(ctx, target)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(v.retry.MaxAttempts)))
	elapsed := time.Since(start)

	fields := map[string]any{
		"email":    email,
		"attempts": attempt,
		"duration": elapsed.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		outcome := metrics.VerifyError
		if errors.Is(err, errRejected) {
			outcome = metrics.VerifyRejected
		}
		v.metrics.Verification(outcome, elapsed)
		log.LogWarnWithFields("sso", "Login verification failed", fields)
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	v.metrics.Verification(metrics.VerifySuccess, elapsed)
	log.LogDebugWithFields("sso", "Login verified", fields)
	return nil
}

var errRejected = errors.New("rejected by SSO proxy")

// attempt performs one proxy call bounded by the verify timeout. Transport
// errors and timed-out attempts are retried; any answer other than 200 is
// final.
func (v *Verifier) attempt(ctx context.Context, target string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if body := ioutil.Snippet(resp.Body, 256); body != "" {
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", errRejected, resp.StatusCode, body))
		}
		return backoff.Permanent(fmt.Errorf("%w: status %d", errRejected, resp.StatusCode))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}
