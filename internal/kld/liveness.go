package kld

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/healthcheck"
)

// chainBackendCheckInterval/Timeout/Backoff/Retries parameterize the
// chain-backend liveness probe; the teacher wires an equivalent check
// against its chain backend's getbestblockhash RPC and restarts the
// process on repeated failure (matching lnd.go's healthcheck.Config
// wiring for its chain/wallet/disk-space observations, adapted here to
// kld's single full-node collaborator).
const (
	chainBackendCheckInterval = 30 * time.Second
	chainBackendCheckTimeout  = 10 * time.Second
	chainBackendCheckBackoff  = 5 * time.Second
	chainBackendCheckRetries  = 3
)

// persistenceCheckInterval/Backoff/Retries parameterize the persistence
// store's liveness probe (spec 4.B: "the controller surfaces a
// syncing=false liveness signal while unavailable"). The check itself is
// instantaneous (it only reads an in-memory flag), so it has no timeout
// constant of its own; the check interval is passed as its timeout.
const (
	persistenceCheckInterval = 30 * time.Second
	persistenceCheckBackoff  = 5 * time.Second
	persistenceCheckRetries  = 3
)

// startLiveness builds and starts a health-check monitor that probes the
// chain backend on a schedule and invokes shutdown if it stays
// unreachable past the configured retry budget.
func (c *Controller) startLiveness(shutdown func(string, ...interface{})) (*healthcheck.Monitor, error) {
	check := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), chainBackendCheckTimeout)
		defer cancel()
		_, _, err := c.chainSrc.GetBestBlock(ctx)
		return err
	}

	obs := healthcheck.NewObservation(
		"chain backend",
		check,
		chainBackendCheckInterval,
		chainBackendCheckTimeout,
		chainBackendCheckBackoff,
		chainBackendCheckRetries,
	)

	persistenceCheck := func() error {
		if c.store.Syncing() {
			return fmt.Errorf("persistence store is retrying a write against the SQL backend")
		}
		return nil
	}
	persistenceObs := healthcheck.NewObservation(
		"persistence store",
		persistenceCheck,
		persistenceCheckInterval,
		persistenceCheckInterval,
		persistenceCheckBackoff,
		persistenceCheckRetries,
	)

	monitor := healthcheck.NewMonitor(&healthcheck.Config{
		Checks:   []*healthcheck.Observation{obs, persistenceObs},
		Shutdown: shutdown,
	})
	if err := monitor.Start(); err != nil {
		return nil, err
	}
	return monitor, nil
}
