package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"visitplan/internal/store"
)

// Delivery outcomes passed to Worker.OnResult.
const (
	OutcomeDelivered = "delivered"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
)

// Worker polls the store for due deliveries and POSTs them.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	MaxAttempts int
	Interval    time.Duration
	Log         log.FieldLogger
	// OnResult, when set, is called once per delivery attempt.
	OnResult func(eventType, outcome string, latencyMs int)
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		Log:         log.WithField("component", "webhooks"),
	}
}

// Run processes deliveries until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
	if err != nil {
		w.Log.WithError(err).Warn("fetch due deliveries")
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	logger := w.Log.WithFields(log.Fields{"delivery": it.ID, "job": it.JobID, "event": it.EventType})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		// a malformed URL never heals
		logger.WithError(err).Error("bad callback request")
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
		w.report(it, OutcomeFailed, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set(SignatureHeader, signCallback(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	code := 0
	success := false
	if err == nil {
		code = resp.StatusCode
		_ = resp.Body.Close()
		success = code >= 200 && code < 300
	}
	lastErr := ""
	switch {
	case err != nil:
		lastErr = err.Error()
	case !success:
		lastErr = http.StatusText(code)
	}

	if !success && it.Attempts+1 >= w.MaxAttempts {
		logger.WithFields(log.Fields{"code": code, "attempts": it.Attempts + 1}).Warn("callback dropped: " + lastErr)
		if err := w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency); err != nil {
			logger.WithError(err).Warn("record failed delivery")
		}
		w.report(it, OutcomeFailed, latency)
		return
	}
	next := time.Now().Add(nextBackoff(it.Attempts))
	if err := w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency); err != nil {
		logger.WithError(err).Warn("record delivery")
	}
	if success {
		logger.WithField("latencyMs", latency).Debug("callback delivered")
		w.report(it, OutcomeDelivered, latency)
		return
	}
	logger.WithFields(log.Fields{"code": code, "retryAt": next}).Info("callback failed, will retry")
	w.report(it, OutcomeRetry, latency)
}

func (w *Worker) report(it store.WebhookDelivery, outcome string, latencyMs int) {
	if w.OnResult != nil {
		w.OnResult(it.EventType, outcome, latencyMs)
	}
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
