package distance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"googlemaps.github.io/maps"
)

// the API accepts at most 100 elements per request
const googleBlock = 10

// GoogleProvider calls the Google Distance Matrix API in driving mode.
type GoogleProvider struct {
	client  *maps.Client
	initErr error
	Log     log.FieldLogger
}

// NewGoogleProvider builds a provider for apiKey. baseURL replaces
// https://maps.googleapis.com when set.
func NewGoogleProvider(apiKey, baseURL string, timeout time.Duration) *GoogleProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	g := &GoogleProvider{Log: log.WithField("component", "distance")}
	if apiKey == "" {
		return g
	}
	opts := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(&http.Client{Timeout: timeout, Transport: statusTransport{http.DefaultTransport}}),
	}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	g.client, g.initErr = maps.NewClient(opts...)
	return g
}

// GetMatrix implements Provider. Distances are converted from metres to
// kilometres.
func (g *GoogleProvider) GetMatrix(ctx context.Context, addresses []string) ([][]float64, error) {
	n := len(addresses)
	if n == 0 {
		return [][]float64{}, nil
	}
	if g.initErr != nil {
		return nil, &ProviderError{Provider: "google", Reason: "client setup", Err: g.initErr}
	}
	if g.client == nil {
		return nil, &ProviderError{Provider: "google", Reason: "no API key configured"}
	}
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	start := time.Now()
	for oi := 0; oi < n; oi += googleBlock {
		oe := min(oi+googleBlock, n)
		for di := 0; di < n; di += googleBlock {
			de := min(di+googleBlock, n)
			if err := g.fetchBlock(ctx, addresses, oi, oe, di, de, matrix); err != nil {
				return nil, err
			}
		}
	}
	g.Log.WithFields(log.Fields{"addresses": n, "elapsed": time.Since(start)}).Debug("distance matrix fetched")
	return matrix, nil
}

func (g *GoogleProvider) fetchBlock(ctx context.Context, addresses []string, oi, oe, di, de int, matrix [][]float64) error {
	resp, err := g.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      addresses[oi:oe],
		Destinations: addresses[di:de],
		Mode:         maps.TravelModeDriving,
	})
	if err != nil {
		return classifyGoogleError(err)
	}
	if len(resp.Rows) != oe-oi {
		return &ProviderError{Provider: "google", Reason: fmt.Sprintf("got %d rows, want %d", len(resp.Rows), oe-oi)}
	}
	for r, row := range resp.Rows {
		if len(row.Elements) != de-di {
			return &ProviderError{Provider: "google", Reason: fmt.Sprintf("row %d has %d elements, want %d", oi+r, len(row.Elements), de-di)}
		}
		for c, el := range row.Elements {
			i, j := oi+r, di+c
			if el == nil || el.Status != "OK" {
				status := "missing"
				if el != nil {
					status = el.Status
				}
				return &ProviderError{Provider: "google", Reason: fmt.Sprintf("no route from %q to %q: %s", addresses[i], addresses[j], status)}
			}
			if el.Distance.Meters < 0 {
				return &ProviderError{Provider: "google", Reason: fmt.Sprintf("invalid distance %d from %q to %q", el.Distance.Meters, addresses[i], addresses[j])}
			}
			matrix[i][j] = float64(el.Distance.Meters) / 1000
		}
	}
	return nil
}

// classifyGoogleError maps a maps client error to a ProviderError.
// Top-level API statuses arrive as "maps: STATUS - message".
func classifyGoogleError(err error) *ProviderError {
	var se *httpStatusError
	if errors.As(err, &se) {
		return &ProviderError{
			Provider:   "google",
			Reason:     "unexpected HTTP status " + se.status,
			StatusCode: se.code,
			retryable:  se.code == http.StatusTooManyRequests || se.code >= 500,
		}
	}
	var ue *url.Error
	if errors.As(err, &ue) || errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: "google", Reason: "request failed", Err: err, retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return &ProviderError{Provider: "google", Reason: "request canceled", Err: err}
	}
	if rest, ok := strings.CutPrefix(err.Error(), "maps: "); ok {
		status, _, _ := strings.Cut(rest, " ")
		switch status {
		case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT", "UNKNOWN_ERROR":
			return &ProviderError{Provider: "google", Reason: strings.TrimSuffix(rest, " - "), retryable: true}
		}
		return &ProviderError{Provider: "google", Reason: strings.TrimSuffix(rest, " - ")}
	}
	// undecodable body
	return &ProviderError{Provider: "google", Reason: "decode response", Err: err, retryable: true}
}

type httpStatusError struct {
	code   int
	status string
}

func (e *httpStatusError) Error() string { return "distance matrix: HTTP " + e.status }

// statusTransport turns non-200 responses into errors so the HTTP status
// survives the client's JSON decoding.
type statusTransport struct{ base http.RoundTripper }

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode == http.StatusOK {
		return resp, err
	}
	_ = resp.Body.Close()
	return nil, &httpStatusError{code: resp.StatusCode, status: resp.Status}
}

// WithDepot prepends the depot address to the patient addresses, giving
// the list whose index 0 is the depot.
func WithDepot(depot string, patients []string) []string {
	out := make([]string, 0, len(patients)+1)
	out = append(out, depot)
	return append(out, patients...)
}
