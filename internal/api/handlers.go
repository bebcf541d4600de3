package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"visitplan/internal/model"
	"visitplan/internal/store"
)

const maxBodyBytes = 8 << 20

func decodeRequest(w http.ResponseWriter, r *http.Request) (model.OptimizeRequest, bool) {
	var req model.OptimizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return req, false
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeError(w, r, err)
		return req, false
	}
	return req, true
}

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	res, err := s.solve(r.Context(), req, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// JobsHandler handles POST/GET /v1/jobs
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		job, err := s.Store.CreateJob(r.Context(), model.Job{Request: req, CallbackURL: req.CallbackURL})
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create job failed", err.Error(), r.URL.Path)
			return
		}
		if !s.enqueue(job.ID) {
			now := time.Now().UTC()
			job.Status = model.JobFailed
			job.FinishedAt = &now
			job.Error = &model.JobError{Code: codeQueueFull, Message: "job queue is full", Retryable: true}
			if err := s.Store.UpdateJob(r.Context(), job); err != nil {
				s.Log.WithError(err).WithField("job", job.ID).Error("mark job failed")
			}
			w.Header().Set("Retry-After", "5")
			writeProblem(w, http.StatusServiceUnavailable, "Job queue full", "too many pending jobs", r.URL.Path)
			return
		}
		s.publish(job.ID, model.EventJobQueued, nil)
		w.Header().Set("Location", "/v1/jobs/"+job.ID)
		writeJSON(w, http.StatusAccepted, job)
	case http.MethodGet:
		q := r.URL.Query()
		limit := 0
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeProblem(w, http.StatusBadRequest, "Invalid limit", fmt.Sprintf("limit %q", v), r.URL.Path)
				return
			}
			limit = n
		}
		items, next, err := s.Store.ListJobs(r.Context(), q.Get("status"), q.Get("cursor"), limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List jobs failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, model.JobList{Items: items, NextCursor: next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// JobByIDHandler handles /v1/jobs/{id} and its sub-resources.
func (s *Server) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/jobs/"), "/"), "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	job, err := s.Store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Job not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get job failed", err.Error(), r.URL.Path)
		return
	}
	switch sub := strings.Join(parts[1:], "/"); sub {
	case "":
		writeJSON(w, http.StatusOK, job)
	case "events/stream":
		s.streamJobEvents(w, r, job)
	case "ws":
		s.JobWSHandler(w, r, job)
	case "deliveries":
		s.listDeliveries(w, r, job)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// streamJobEvents serves the job's events as server-sent events until the
// job finishes or the client goes away.
func (s *Server) streamJobEvents(w http.ResponseWriter, r *http.Request, job model.Job) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch := s.Broker.Subscribe(job.ID)
	defer s.Broker.Unsubscribe(job.ID, ch)
	// re-read after subscribing so a job finishing in between is not missed
	if cur, err := s.Store.GetJob(r.Context(), job.ID); err == nil {
		job = cur
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if err := writeSSE(w, model.JobEvent{Type: "job.snapshot", JobID: job.ID, TS: time.Now().UTC(), Data: job}); err != nil {
		s.Log.WithError(err).WithField("job", job.ID).Warn("encode event")
	}
	flusher.Flush()
	if job.Terminal() {
		return
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, evt); err != nil {
				s.Log.WithError(err).WithField("job", job.ID).Warn("encode event")
			}
			flusher.Flush()
			if evt.Type == model.EventJobCompleted || evt.Type == model.EventJobFailed {
				return
			}
		case <-heartbeat.C:
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"jobId\":%q,\"ts\":%q}\n\n", job.ID, time.Now().UTC().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// writeSSE writes nothing when the event cannot be encoded.
func writeSSE(w http.ResponseWriter, evt model.JobEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", b)
	return nil
}

func (s *Server) listDeliveries(w http.ResponseWriter, r *http.Request, job model.Job) {
	ds, err := s.Store.ListWebhookDeliveries(r.Context(), job.ID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	items := make([]map[string]any, 0, len(ds))
	for _, d := range ds {
		item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
		if !d.NextAttemptAt.IsZero() && (d.Status == "pending" || d.Status == "retry") {
			item["nextAttemptAt"] = d.NextAttemptAt
		}
		if d.LastError != "" {
			item["lastError"] = d.LastError
		}
		if d.ResponseCode != 0 {
			item["responseCode"] = d.ResponseCode
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// SolverConfigHandler handles GET /v1/solver/config
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	c := s.Solver.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"workers":      c.Workers,
		"timeLimitMs":  c.TimeLimit.Milliseconds(),
		"nodeLimit":    c.NodeLimit,
		"warmStart":    c.WarmStart,
		"presolve":     c.Presolve,
		"relaxer":      c.Relaxer,
		"depotAddress": s.Config.Distance.DepotAddress,
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
