package api

import (
	"net/http"
	"time"

	"visitplan/internal/buildinfo"
)

// DebugJSON reports build information and the non-secret configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":               c.Port,
			"rateRps":            c.Rate.RPS,
			"rateBurst":          c.Rate.Burst,
			"webhookMaxAttempts": c.Webhook.MaxAttempts,
			"jobWorkers":         c.JobWorkers,
			"logLevel":           c.Log.Level,
			"hasDatabaseUrl":     c.DatabaseURL != "",
			"hasRedisUrl":        c.RedisURL != "",
			"hasMapsKey":         c.Distance.APIKey != "",
			"hasWebhookSecret":   c.Webhook.Secret != "",
		},
	})
}
