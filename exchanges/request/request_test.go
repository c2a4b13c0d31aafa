package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastRequester(t *testing.T, opts ...Option) *Requester {
	t.Helper()
	r, err := New("test", zap.NewNop(), opts...)
	require.NoError(t, err)
	r.backoff = func(int) time.Duration { return time.Millisecond }
	return r
}

func TestNewRequiresName(t *testing.T) {
	t.Parallel()

	_, err := New("", zap.NewNop())
	assert.ErrorIs(t, err, errRequesterNameUnset)
}

func TestGetPassesThroughBodyAndStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC-XRP", r.URL.Query().Get("market"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	r := fastRequester(t)
	resp, err := r.Get(context.Background(), srv.URL, url.Values{"market": {"BTC-XRP"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Equal(t, `{"success":false}`, string(resp.Body))
}

func TestGetRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	r := fastRequester(t)
	resp, err := r.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestGetExhaustsRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := fastRequester(t)
	_, err := r.Get(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrRetryExhausted)
}

func TestGetHonoursContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := fastRequester(t)
	_, err := r.Get(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"result":[{"MarketName":"BTC-XRP"}]}`))
	}))
	defer srv.Close()

	var out struct {
		Success bool `json:"success"`
		Result  []struct {
			MarketName string `json:"MarketName"`
		} `json:"result"`
	}
	r := fastRequester(t)
	require.NoError(t, r.GetJSON(context.Background(), srv.URL, nil, &out))
	require.Len(t, out.Result, 1)
	assert.True(t, out.Success)
	assert.Equal(t, "BTC-XRP", out.Result[0].MarketName)
}

func TestNewRateLimit(t *testing.T) {
	t.Parallel()

	l := NewRateLimit(time.Second, 10)
	assert.InDelta(t, 10, float64(l.Limit()), 0.01)

	unrestricted := NewRateLimit(0, 0)
	assert.True(t, unrestricted.Allow())
}
