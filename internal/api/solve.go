package api

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"visitplan/internal/distance"
	"visitplan/internal/metrics"
	"visitplan/internal/model"
	"visitplan/internal/opt"
)

// solve turns a transport request into a solver run: distances are
// fetched when only addresses are given, and a missing preference map
// falls back to round-robin.
func (s *Server) solve(ctx context.Context, req model.OptimizeRequest, progress func(opt.Progress)) (model.OptimizeResponse, error) {
	if err := validateOptimizeRequest(&req); err != nil {
		return model.OptimizeResponse{}, err
	}
	d := req.DistanceMatrix
	var locations []string
	if len(req.Addresses) > 0 {
		depot := req.DepotAddress
		if depot == "" {
			depot = s.Config.Distance.DepotAddress
		}
		locations = distance.WithDepot(depot, req.Addresses)
		m, err := s.Distance.GetMatrix(ctx, locations)
		if err != nil {
			return model.OptimizeResponse{}, fmt.Errorf("distance matrix: %w", err)
		}
		d = m
	}
	prefs := req.Preferences
	if prefs == nil {
		prefs = opt.RoundRobin(len(d), len(req.WorkerNames))
	}
	res, err := s.solverFor(req.Solver).Solve(ctx, opt.Request{
		Distances:   d,
		Workers:     req.WorkerNames,
		Preferences: prefs,
	}, progress)
	if err != nil {
		return model.OptimizeResponse{}, err
	}
	return model.OptimizeResponse{Result: res, Locations: locations}, nil
}

// solverFor applies per-request overrides. Overrides may only tighten
// the configured limits.
func (s *Server) solverFor(o *model.SolverOverrides) *opt.Solver {
	if o == nil {
		return s.Solver
	}
	cfg := s.Solver.Config()
	if o.TimeLimitMs > 0 {
		tl := time.Duration(o.TimeLimitMs) * time.Millisecond
		if cfg.TimeLimit == 0 || tl < cfg.TimeLimit {
			cfg.TimeLimit = tl
		}
	}
	if o.NodeLimit > 0 && (cfg.NodeLimit == 0 || o.NodeLimit < cfg.NodeLimit) {
		cfg.NodeLimit = o.NodeLimit
	}
	if o.Workers > 0 && (cfg.Workers == 0 || o.Workers < cfg.Workers) {
		cfg.Workers = o.Workers
	}
	if o.WarmStart != nil {
		cfg.WarmStart = *o.WarmStart
	}
	return opt.NewSolver(cfg, opt.WithLogger(s.Log), opt.WithObserver(metrics.SolveObserver{}))
}

// jobWorker runs queued jobs until ctx is done.
func (s *Server) jobWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.pendingMu.Lock()
			delete(s.pending, id)
			s.pendingMu.Unlock()
			s.runJob(ctx, id)
		}
	}
}

// enqueue hands id to the job workers and reports false when the queue
// is full. An id already waiting is not queued twice.
func (s *Server) enqueue(id string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if _, ok := s.pending[id]; ok {
		return true
	}
	select {
	case s.queue <- id:
		s.pending[id] = struct{}{}
		return true
	default:
		return false
	}
}

// recoverJobs puts queued jobs left in the store back on the queue and
// fails running ones, whose solve died with the previous process. It
// assumes a single server instance per store.
func (s *Server) recoverJobs(ctx context.Context) {
	for _, status := range []string{model.JobRunning, model.JobQueued} {
		cursor := ""
		for {
			jobs, next, err := s.Store.ListJobs(ctx, status, cursor, 100)
			if err != nil {
				s.Log.WithError(err).WithField("status", status).Error("list unfinished jobs")
				break
			}
			for _, job := range jobs {
				switch {
				case status == model.JobRunning:
					s.failJob(ctx, job, &model.JobError{Code: codeInterrupted, Message: "solve interrupted by a server restart", Retryable: true})
				case !s.enqueue(job.ID):
					s.failJob(ctx, job, &model.JobError{Code: codeQueueFull, Message: "job queue is full", Retryable: true})
				default:
					s.Log.WithField("job", job.ID).Info("job requeued")
				}
			}
			if next == "" {
				break
			}
			cursor = next
		}
	}
}

// failJob records a job as failed without running it and notifies
// subscribers and the callback.
func (s *Server) failJob(ctx context.Context, job model.Job, jerr *model.JobError) {
	logger := s.Log.WithField("job", job.ID)
	now := time.Now().UTC()
	job.Status = model.JobFailed
	job.FinishedAt = &now
	job.Error = jerr
	if err := s.Store.UpdateJob(ctx, job); err != nil {
		logger.WithError(err).Error("mark job failed")
		return
	}
	logger.WithField("code", jerr.Code).Warn("job failed")
	s.publish(job.ID, model.EventJobFailed, job)
	if err := s.Pub.JobFinished(ctx, job); err != nil {
		logger.WithError(err).Error("queue callback")
	}
}

func (s *Server) runJob(ctx context.Context, id string) {
	logger := s.Log.WithField("job", id)
	job, err := s.Store.GetJob(ctx, id)
	if err != nil {
		logger.WithError(err).Error("load job")
		return
	}
	if job.Status != model.JobQueued {
		logger.WithField("status", job.Status).Warn("job is not queued, skipped")
		return
	}
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	started := time.Now().UTC()
	job.Status = model.JobRunning
	job.StartedAt = &started
	if err := s.Store.UpdateJob(ctx, job); err != nil {
		logger.WithError(err).Error("mark job running")
		return
	}
	s.publish(job.ID, model.EventJobStarted, nil)

	res, err := s.solve(ctx, job.Request, func(p opt.Progress) {
		s.publish(job.ID, model.EventIncumbent, model.IncumbentEvent{
			Distance:  p.Objective,
			Nodes:     p.Nodes,
			ElapsedMs: p.Elapsed.Milliseconds(),
		})
	})
	finished := time.Now().UTC()
	job.FinishedAt = &finished
	event := model.EventJobCompleted
	if err != nil {
		job.Status = model.JobFailed
		job.Error = jobError(err)
		event = model.EventJobFailed
		logger.WithError(err).Warn("job failed")
	} else {
		job.Status = model.JobSucceeded
		job.Result = &res
		logger.WithFields(log.Fields{"status": res.Status, "distance": res.TotalDistance}).Info("job finished")
	}

	// the solve may have been cut short by shutdown; the final state
	// must still be written
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Store.UpdateJob(wctx, job); err != nil {
		logger.WithError(err).Error("save job result")
	}
	s.publish(job.ID, event, job)
	if err := s.Pub.JobFinished(wctx, job); err != nil {
		logger.WithError(err).Error("queue callback")
	}
}

func (s *Server) publish(jobID, eventType string, data any) {
	s.Broker.Publish(jobID, model.JobEvent{Type: eventType, JobID: jobID, TS: time.Now().UTC(), Data: data})
}
