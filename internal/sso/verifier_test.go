package sso

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenup/docgate/internal/config"
	"github.com/tenup/docgate/internal/metrics"
)

// fakeProxy answers verification calls with status for known nonces
type fakeProxy struct {
	calls  atomic.Int32
	valid  map[string]string
	delay  time.Duration
	status int
}

func (p *fakeProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.status != 0 {
		w.WriteHeader(p.status)
		return
	}
	q := r.URL.Query()
	if q.Get("action") != "10up-verify" || p.valid[q.Get("nonce")] != q.Get("email") {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid\n  nonce"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func testSSOConfig(proxyURL string) config.SSOConfig {
	return config.SSOConfig{
		ProxyURL:          proxyURL,
		VerifyTimeout:     2 * time.Second,
		VerifiedCacheTTL:  time.Minute,
		VerifiedCacheSize: 16,
		Retry:             config.RetryConfig{MaxAttempts: 1},
	}
}

func TestVerifier_Verify(t *testing.T) {
	proxy := &fakeProxy{valid: map[string]string{"n1": "dev@example.com"}}
	srv := httptest.NewServer(proxy)
	defer srv.Close()

	tests := []struct {
		name    string
		nonce   string
		email   string
		wantErr bool
	}{
		{name: "valid pair", nonce: "n1", email: "dev@example.com"},
		{name: "wrong email", nonce: "n1", email: "other@example.com", wantErr: true},
		{name: "unknown nonce", nonce: "n2", email: "dev@example.com", wantErr: true},
		{name: "missing nonce", nonce: "", email: "dev@example.com", wantErr: true},
		{name: "missing email", nonce: "n1", email: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(testSSOConfig(srv.URL))
			err := v.Verify(context.Background(), tt.nonce, tt.email)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrVerificationFailed)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifier_CachesConfirmedPairs(t *testing.T) {
	proxy := &fakeProxy{valid: map[string]string{"n1": "dev@example.com"}}
	srv := httptest.NewServer(proxy)
	defer srv.Close()

	m := metrics.New()
	v := NewVerifier(testSSOConfig(srv.URL), WithMetrics(m))

	require.NoError(t, v.Verify(context.Background(), "n1", "dev@example.com"))
	require.NoError(t, v.Verify(context.Background(), "n1", "Dev@Example.com"))
	assert.Equal(t, int32(1), proxy.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VerificationsTotal.WithLabelValues(metrics.VerifyCached)))

	v.Forget("n1", "dev@example.com")
	require.NoError(t, v.Verify(context.Background(), "n1", "dev@example.com"))
	assert.Equal(t, int32(2), proxy.calls.Load())
}

func TestVerifier_RejectionsAreNotCached(t *testing.T) {
	proxy := &fakeProxy{}
	srv := httptest.NewServer(proxy)
	defer srv.Close()

	v := NewVerifier(testSSOConfig(srv.URL))
	assert.Error(t, v.Verify(context.Background(), "n1", "dev@example.com"))
	assert.Error(t, v.Verify(context.Background(), "n1", "dev@example.com"))
	assert.Equal(t, int32(2), proxy.calls.Load())
}

func TestVerifier_ConcurrentCallsShareOneRequest(t *testing.T) {
	proxy := &fakeProxy{
		valid: map[string]string{"n1": "dev@example.com"},
		delay: 100 * time.Millisecond,
	}
	srv := httptest.NewServer(proxy)
	defer srv.Close()

	v := NewVerifier(testSSOConfig(srv.URL))

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = v.Verify(context.Background(), "n1", "dev@example.com")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), proxy.calls.Load())
}

func TestVerifier_Timeout(t *testing.T) {
	proxy := &fakeProxy{
		valid: map[string]string{"n1": "dev@example.com"},
		delay: 500 * time.Millisecond,
	}
	srv := httptest.NewServer(proxy)
	defer srv.Close()

	cfg := testSSOConfig(srv.URL)
	cfg.VerifyTimeout = 50 * time.Millisecond
	v := NewVerifier(cfg)

	start := time.Now()
	err := v.Verify(context.Background(), "n1", "dev@example.com")
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestVerifier_CallerCancellation(t *testing.T) {
	proxy := &fakeProxy{
		valid: map[string]string{"n1": "dev@example.com"},
		delay: 300 * time.Millisecond,
	}
	srv := httptest.NewServer(proxy)
	defer srv.Close()

	v := NewVerifier(testSSOConfig(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := v.Verify(ctx, "n1", "dev@example.com")
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVerifier_RetriesTransportErrorsOnly(t *testing.T) {
	t.Run("transport errors retried", func(t *testing.T) {
		var calls atomic.Int32
		client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if calls.Add(1) < 3 {
				return nil, assert.AnError
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
		})}

		cfg := testSSOConfig("https://sso.example.com/")
		cfg.Retry = config.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond}
		v := NewVerifier(cfg, WithHTTPClient(client))

		require.NoError(t, v.Verify(context.Background(), "n1", "dev@example.com"))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("attempts bounded", func(t *testing.T) {
		var calls atomic.Int32
		client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, assert.AnError
		})}

		cfg := testSSOConfig("https://sso.example.com/")
		cfg.Retry = config.RetryConfig{MaxAttempts: 2, InitialInterval: time.Millisecond}
		v := NewVerifier(cfg, WithHTTPClient(client))

		assert.ErrorIs(t, v.Verify(context.Background(), "n1", "dev@example.com"), ErrVerificationFailed)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("each attempt gets its own timeout", func(t *testing.T) {
		var calls atomic.Int32
		client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				<-r.Context().Done()
				return nil, r.Context().Err()
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
		})}

		cfg := testSSOConfig("https://sso.example.com/")
		cfg.VerifyTimeout = 50 * time.Millisecond
		cfg.Retry = config.RetryConfig{MaxAttempts: 2, InitialInterval: time.Millisecond}
		v := NewVerifier(cfg, WithHTTPClient(client))

		require.NoError(t, v.Verify(context.Background(), "n1", "dev@example.com"))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("rejections never retried", func(t *testing.T) {
		proxy := &fakeProxy{status: http.StatusUnauthorized}
		srv := httptest.NewServer(proxy)
		defer srv.Close()

		cfg := testSSOConfig(srv.URL)
		cfg.Retry = config.RetryConfig{MaxAttempts: 5, InitialInterval: time.Millisecond}
		v := NewVerifier(cfg)

		assert.ErrorIs(t, v.Verify(context.Background(), "n1", "dev@example.com"), ErrVerificationFailed)
		assert.Equal(t, int32(1), proxy.calls.Load())
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestVerifier_RejectionCarriesProxyAnswer(t *testing.T) {
	srv := httptest.NewServer(&fakeProxy{})
	defer srv.Close()

	err := NewVerifier(testSSOConfig(srv.URL)).Verify(context.Background(), "n1", "dev@example.com")
	require.ErrorIs(t, err, ErrVerificationFailed)
	assert.Contains(t, err.Error(), "status 403: invalid nonce")
}
