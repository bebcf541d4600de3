package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineServer places address "pK" at K kilometres along a line.
func lineServer(t *testing.T, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/maps/api/distancematrix/json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "driving", q.Get("mode"))
		assert.Equal(t, "k", q.Get("key"))
		pos := func(s string) float64 {
			v, err := strconv.Atoi(strings.TrimPrefix(s, "p"))
			assert.NoError(t, err)
			return float64(v)
		}
		origins := strings.Split(q.Get("origins"), "|")
		dests := strings.Split(q.Get("destinations"), "|")
		assert.LessOrEqual(t, len(origins)*len(dests), 100)
		var rows []map[string]any
		for _, o := range origins {
			var els []map[string]any
			for _, d := range dests {
				els = append(els, map[string]any{
					"status":   "OK",
					"distance": map[string]any{"value": math.Abs(pos(o)-pos(d)) * 1000},
				})
			}
			rows = append(rows, map[string]any{"elements": els})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "OK", "rows": rows})
	}))
}

func TestGoogleProviderBuildsMatrixInKilometres(t *testing.T) {
	var calls int32
	srv := lineServer(t, &calls)
	defer srv.Close()

	addrs := make([]string, 12)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("p%d", i)
	}
	g := NewGoogleProvider("k", srv.URL, 0)
	m, err := g.GetMatrix(context.Background(), addrs)
	require.NoError(t, err)
	require.Len(t, m, 12)
	assert.InDelta(t, 11, m[0][11], 1e-12)
	assert.InDelta(t, 3, m[7][4], 1e-12)
	assert.Zero(t, m[5][5])
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls), "12 addresses need a 2x2 grid of blocks")
}

func TestGoogleProviderErrors(t *testing.T) {
	cases := map[string]struct {
		handler   http.HandlerFunc
		retryable bool
	}{
		"server error": {
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			retryable: true,
		},
		"quota": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"OVER_QUERY_LIMIT"}`))
			},
			retryable: true,
		},
		"rate limited": {
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			retryable: true,
		},
		"bad request": {
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
		},
		"transient": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"UNKNOWN_ERROR"}`))
			},
			retryable: true,
		},
		"denied": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
			},
		},
		"element not found": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"OK","rows":[{"elements":[{"status":"OK","distance":{"value":0}},{"status":"NOT_FOUND"}]},{"elements":[{"status":"OK","distance":{"value":5}},{"status":"OK","distance":{"value":0}}]}]}`))
			},
		},
		"short row": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"OK","rows":[{"elements":[]},{"elements":[]}]}`))
			},
		},
		"negative": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"OK","rows":[{"elements":[{"status":"OK","distance":{"value":0}},{"status":"OK","distance":{"value":-4}}]},{"elements":[{"status":"OK","distance":{"value":5}},{"status":"OK","distance":{"value":0}}]}]}`))
			},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			_, err := NewGoogleProvider("k", srv.URL, 0).GetMatrix(context.Background(), []string{"a", "b"})
			var pe *ProviderError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tc.retryable, pe.Retryable())
			assert.True(t, IsProviderError(fmt.Errorf("wrapped: %w", err)))
		})
	}
}

func TestGoogleProviderNeedsKey(t *testing.T) {
	_, err := NewGoogleProvider("", "", 0).GetMatrix(context.Background(), []string{"a"})
	require.True(t, IsProviderError(err))

	m, err := NewGoogleProvider("", "", 0).GetMatrix(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestGoogleProviderReportsStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	_, err := NewGoogleProvider("k", srv.URL, 0).GetMatrix(context.Background(), []string{"a"})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
}

func TestWithDepot(t *testing.T) {
	assert.Equal(t, []string{"depot", "a", "b"}, WithDepot("depot", []string{"a", "b"}))
}
