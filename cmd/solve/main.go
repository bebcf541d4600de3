// Command solve plans visit routes for one instance read from a JSON or
// YAML file and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"

	"visitplan/internal/config"
	"visitplan/internal/distance"
	"visitplan/internal/model"
	"visitplan/internal/opt"
)

func main() {
	var (
		cfgPath     = flag.String("config", "", "path to a YAML config file (default $VISITPLAN_CONFIG)")
		in          = flag.String("in", "-", "instance file (.json, .yaml or .yml); - reads JSON from stdin")
		workers     = flag.Int("workers", -1, "branch-and-bound goroutines (0 = one per CPU)")
		timeLimit   = flag.Duration("time-limit", -1, "search time limit (0 = none)")
		nodeLimit   = flag.Int("node-limit", -1, "branch-and-bound node limit (0 = none)")
		noWarmStart = flag.Bool("no-warm-start", false, "skip the heuristic incumbent")
		verbose     = flag.Bool("verbose", false, "log search progress to stderr")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(err)
	}
	logger := cfg.Logger()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	sc := cfg.Solver
	if *workers >= 0 {
		sc.Workers = *workers
	}
	if *timeLimit >= 0 {
		sc.TimeLimit = *timeLimit
	}
	if *nodeLimit >= 0 {
		sc.NodeLimit = *nodeLimit
	}
	if *noWarmStart {
		sc.WarmStart = false
	}
	if err := sc.Validate(); err != nil {
		fatal(err)
	}

	req, err := readRequest(*in)
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	d := req.DistanceMatrix
	var locations []string
	if len(req.Addresses) > 0 {
		depot := req.DepotAddress
		if depot == "" {
			depot = cfg.Distance.DepotAddress
		}
		locations = distance.WithDepot(depot, req.Addresses)
		p := distance.NewGoogleProvider(cfg.Distance.APIKey, cfg.Distance.BaseURL, cfg.Distance.Timeout)
		p.Log = logger
		if d, err = p.GetMatrix(ctx, locations); err != nil {
			fatal(err)
		}
	}
	prefs := req.Preferences
	if prefs == nil {
		prefs = opt.RoundRobin(len(d), len(req.WorkerNames))
	}

	solver := opt.NewSolver(sc, opt.WithLogger(logger))
	start := time.Now()
	res, err := solver.Solve(ctx, opt.Request{Distances: d, Workers: req.WorkerNames, Preferences: prefs}, func(p opt.Progress) {
		logger.WithFields(log.Fields{"distance": p.Objective, "nodes": p.Nodes}).Debug("incumbent")
	})
	if err != nil {
		fatal(err)
	}
	logger.WithFields(log.Fields{"status": res.Status, "elapsed": time.Since(start)}).Info("solved")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(model.OptimizeResponse{Result: res, Locations: locations}); err != nil {
		fatal(err)
	}
}

func readRequest(path string) (model.OptimizeRequest, error) {
	var req model.OptimizeRequest
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return req, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &req)
	default:
		err = json.Unmarshal(b, &req)
	}
	if err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(req.DistanceMatrix) > 0 && len(req.Addresses) > 0 {
		return req, fmt.Errorf("%s: set either distanceMatrix or addresses, not both", path)
	}
	return req, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "solve:", err)
	os.Exit(1)
}
