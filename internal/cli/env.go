// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/jeranaias/tokencost/internal/config"
	"github.com/jeranaias/tokencost/internal/cost"
	"github.com/jeranaias/tokencost/internal/pricing"
	"github.com/jeranaias/tokencost/internal/telemetry"
)

// Env carries what command handlers share: output streams, configuration,
// the price cache and the logger. Tests build one around buffers.
type Env struct {
	Out    io.Writer
	Err    io.Writer
	Config *config.Config
	Cache  *pricing.Cache
	Logger *slog.Logger

	// JSON switches every handler to the JSONResponse envelope.
	JSON bool

	// interactive reports whether Out is a terminal; it enables glamour and
	// chroma rendering.
	interactive bool

	estimator *cost.Estimator
}

// NewEnv builds the process environment from cfg: stdout/stderr, a logger
// configured from cfg.Log writing to logOut (stderr when nil), and the
// process-wide price cache. cfg becomes config.Global() so that
// pricing.Default() is built from it.
func NewEnv(cfg *config.Config, args Args, logOut io.Writer) *Env {
	if logOut == nil {
		logOut = os.Stderr
	}
	logger := SetupLogging(cfg.Log, args.Verbose, logOut)
	if args.Offline {
		cfg.Pricing.Offline = true
	}
	config.SetGlobal(cfg)
	return &Env{
		Out:         os.Stdout,
		Err:         os.Stderr,
		Config:      cfg,
		Cache:       pricing.Default(),
		Logger:      logger,
		JSON:        args.JSON,
		interactive: IsStdoutTTY() && !args.JSON,
	}
}

// Estimator returns the Estimator over the environment's cache.
func (e *Env) Estimator() *cost.Estimator {
	if e.estimator == nil {
		e.estimator = cost.NewEstimator(e.Cache, e.Logger)
	}
	return e.estimator
}

// Prices returns the price table or nil. Failures are logged, never returned:
// display paths degrade to "cost unknown".
func (e *Env) Prices(ctx context.Context) *pricing.Table {
	table, err := e.Cache.Get(ctx)
	if err != nil {
		e.Logger.Debug("price table unavailable", "error", err)
		return nil
	}
	return table
}

// OpenTracker opens the usage log. The caller closes the returned store.
func (e *Env) OpenTracker() (*telemetry.CostTracker, *telemetry.Store, error) {
	path, err := e.Config.DatabasePath()
	if err != nil {
		return nil, nil, err
	}
	store, err := telemetry.OpenStore(path)
	if err != nil {
		return nil, nil, err
	}
	return telemetry.NewCostTracker(store, e.Estimator(), e.Logger), store, nil
}
