package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"visitplan/internal/model"
	"visitplan/internal/store"
)

// Publisher queues job callbacks for the Worker.
type Publisher struct {
	Store  store.Store
	Secret string
}

func NewPublisher(s store.Store, secret string) *Publisher {
	return &Publisher{Store: s, Secret: secret}
}

// JobFinished enqueues the final job document for its callback URL. Jobs
// without a callback are ignored.
func (p *Publisher) JobFinished(ctx context.Context, job model.Job) error {
	if job.CallbackURL == "" {
		return nil
	}
	eventType := model.EventJobCompleted
	if job.Status == model.JobFailed {
		eventType = model.EventJobFailed
	}
	payload := map[string]any{
		"id":   "evt_" + job.ID,
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": job,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode callback for job %s: %w", job.ID, err)
	}
	if _, err := p.Store.EnqueueWebhook(ctx, job.ID, eventType, job.CallbackURL, p.Secret, body); err != nil {
		return fmt.Errorf("enqueue callback for job %s: %w", job.ID, err)
	}
	return nil
}

// SignatureHeader carries "sha256=<hex HMAC of the body>" on callbacks
// sent with a secret.
const SignatureHeader = "X-Signature"

func signCallback(secret string, body []byte) string {
	return "sha256=" + hex.EncodeToString(callbackMAC(secret, body))
}

// VerifyCallback reports whether header is the signature of a callback
// body under secret. Receivers use it to authenticate job callbacks.
func VerifyCallback(secret string, body []byte, header string) bool {
	digest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	return hmac.Equal(callbackMAC(secret, body), mac)
}

func callbackMAC(secret string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}
