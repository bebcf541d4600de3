package api

import (
	"fmt"
	"net/url"
	"strings"

	"visitplan/internal/model"
	"visitplan/internal/opt"
)

// validateOptimizeRequest checks the transport shape of a request. The
// matrix and preference rules are enforced by opt.Validate.
func validateOptimizeRequest(req *model.OptimizeRequest) error {
	hasMatrix := len(req.DistanceMatrix) > 0
	hasAddresses := len(req.Addresses) > 0
	if hasMatrix == hasAddresses {
		return fmt.Errorf("%w: exactly one of distanceMatrix or addresses is required", opt.ErrInvalidInput)
	}
	for i, a := range req.Addresses {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("%w: address %d is blank", opt.ErrInvalidInput, i)
		}
	}
	if hasMatrix && req.DepotAddress != "" {
		return fmt.Errorf("%w: depotAddress only applies with addresses", opt.ErrInvalidInput)
	}
	if len(req.WorkerNames) == 0 {
		return fmt.Errorf("%w: workerNames must not be empty", opt.ErrInvalidInput)
	}
	if o := req.Solver; o != nil {
		if o.TimeLimitMs < 0 {
			return fmt.Errorf("%w: solver.timeLimitMs must be >= 0", opt.ErrInvalidInput)
		}
		if o.NodeLimit < 0 {
			return fmt.Errorf("%w: solver.nodeLimit must be >= 0", opt.ErrInvalidInput)
		}
		if o.Workers < 0 {
			return fmt.Errorf("%w: solver.workers must be >= 0", opt.ErrInvalidInput)
		}
	}
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: callbackUrl must be an absolute http(s) URL", opt.ErrInvalidInput)
		}
	}
	return nil
}
