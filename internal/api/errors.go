package api

import (
	"context"
	"errors"
	"net/http"

	"visitplan/internal/distance"
	"visitplan/internal/model"
	"visitplan/internal/opt"
)

// Problem codes, also stored on failed jobs.
const (
	codeInvalidInput = "invalid_input"
	codeProvider     = "provider_error"
	codeInfeasible   = "infeasible"
	codeUnsolved     = "unsolved"
	codeInconsistent = "inconsistent_solution"
	codeCanceled     = "canceled"
	codeInternal     = "internal"
	codeQueueFull    = "queue_full"
	codeInterrupted  = "interrupted"
)

type errorClass struct {
	status    int
	title     string
	code      string
	retryable bool
}

func classify(err error) errorClass {
	var pe *distance.ProviderError
	switch {
	case errors.Is(err, opt.ErrInvalidInput):
		return errorClass{http.StatusBadRequest, "Invalid optimize request", codeInvalidInput, false}
	case errors.As(err, &pe):
		return errorClass{http.StatusBadGateway, "Distance lookup failed", codeProvider, pe.Retryable()}
	case errors.Is(err, opt.ErrInfeasible):
		return errorClass{http.StatusUnprocessableEntity, "No feasible routing", codeInfeasible, false}
	case errors.Is(err, opt.ErrUnsolved):
		return errorClass{http.StatusUnprocessableEntity, "No routing found within the search budget", codeUnsolved, false}
	case errors.Is(err, opt.ErrInconsistentSolution):
		return errorClass{http.StatusInternalServerError, "Inconsistent solution", codeInconsistent, false}
	case errors.Is(err, context.Canceled):
		return errorClass{http.StatusServiceUnavailable, "Solve canceled", codeCanceled, true}
	}
	return errorClass{http.StatusInternalServerError, "Optimize failed", codeInternal, false}
}

func jobError(err error) *model.JobError {
	c := classify(err)
	return &model.JobError{Code: c.code, Message: err.Error(), Retryable: c.retryable}
}
