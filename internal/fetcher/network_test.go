package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider(concurrency, delayMS int) providers.Provider {
	return providers.Provider{
		ID:               "example",
		BaseURL:          "https://example.com",
		ClientKind:       providers.ClientNetwork,
		Concurrency:      concurrency,
		RateLimitDelayMS: delayMS,
		Headers:          map[string]string{"Accept-Language": "en"},
	}
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}
}

func TestNetworkFetchReturnsBodyAndSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en", r.Header.Get("Accept-Language"))
		assert.Equal(t, "harvester-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	n := NewNetwork(testProvider(1, 0), Options{UserAgent: "harvester-test", Retry: fastRetry(1)})
	body, err := n.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.Equal(t, providers.ClientNetwork, n.Kind())
}

func TestNetworkRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	n := NewNetwork(testProvider(1, 0), Options{Retry: fastRetry(3)})
	body, err := n.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(body))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestNetworkGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNetwork(testProvider(1, 0), Options{Retry: fastRetry(3)})
	_, err := n.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, KindHTTP, ferr.Kind)
	assert.Equal(t, http.StatusBadGateway, ferr.Status)
	assert.Equal(t, 3, ferr.Attempts)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestNetworkDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	n := NewNetwork(testProvider(1, 0), Options{Retry: fastRetry(5)})
	_, err := n.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestNetworkClassifiesConnectionFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	n := NewNetwork(testProvider(1, 0), Options{Retry: fastRetry(2)})
	_, err := n.Fetch(context.Background(), url)

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, KindConnection, ferr.Kind)
	assert.True(t, ferr.Retryable())
	assert.Equal(t, 2, ferr.Attempts)
}

func TestNetworkClassifiesTimeouts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	n := NewNetwork(testProvider(1, 0), Options{Timeout: 50 * time.Millisecond, Retry: fastRetry(1)})
	_, err := n.Fetch(context.Background(), srv.URL)

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, KindTimeout, ferr.Kind)
}

func TestNetworkSpacesRequestStarts(t *testing.T) {
	const delay = 80 * time.Millisecond

	var (
		mu     sync.Mutex
		starts []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
	}))
	defer srv.Close()

	n := NewNetwork(testProvider(1, int(delay/time.Millisecond)), Options{Retry: fastRetry(1)})
	for range 4 {
		_, err := n.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}

	require.Len(t, starts, 4)
	for i := 1; i < len(starts); i++ {
		// allow a little scheduling jitter between the limiter and the handler clock
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), delay-10*time.Millisecond)
	}
}

func TestNetworkBoundsInFlightRequests(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}))
	defer srv.Close()

	n := NewNetwork(testProvider(2, 0), Options{Retry: fastRetry(1)})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = n.Fetch(context.Background(), srv.URL)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestNewRejectsUnknownClientKind(t *testing.T) {
	p := testProvider(1, 0)
	p.ClientKind = "carrier-pigeon"
	_, err := New(context.Background(), p, Options{})
	assert.Error(t, err)
}
