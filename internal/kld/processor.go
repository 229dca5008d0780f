package kld

import (
	"context"
	"sync/atomic"
	"time"
)

// persistInterval is the Open Question spec section 9 leaves unspecified
// ("the background processor will periodically persist_manager,
// persist_graph, persist_scorer" — no period given); 30s is the chosen
// value, matching the teacher's graph-prune/rebroadcast cadence order of
// magnitude in server.go.
const persistInterval = 30 * time.Second

// Start launches the background processor (spec 4.F step 13), runs the
// chain-sync task to completion (step 14's first half), then brings up
// the peer manager's listener and background tasks (step 14's second
// half).
func (c *Controller) Start(ctx context.Context) error {
	c.wg.Add(1)
	go c.backgroundProcessor(ctx)

	monitor, err := c.startLiveness(func(format string, args ...interface{}) {
		c.log.Errorf("liveness check failed, shutting down: "+format, args...)
		_ = c.Stop()
	})
	if err != nil {
		return err
	}
	c.liveness = monitor

	if err := c.runChainSync(ctx); err != nil {
		return err
	}

	if err := c.peerMgr.Start(); err != nil {
		return err
	}
	return nil
}

// Stop implements the cancellation sequence (spec section 5): disconnect
// every peer, stop the background processor, and let the chain-poller
// task exit on its next tick.
func (c *Controller) Stop() error {
	if !atomic.CompareAndSwapInt32(&c.shutdown, 0, 1) {
		return nil
	}
	if c.liveness != nil {
		_ = c.liveness.Stop()
	}
	if err := c.peerMgr.Stop(); err != nil {
		c.log.Warnf("error stopping peer manager: %v", err)
	}
	close(c.quit)
	c.wg.Wait()
	return c.store.Close()
}

// backgroundProcessor is the single serialized event-dispatch loop (spec
// section 5: "one event at a time per processor; there is one
// processor"), interleaved with periodic persistence of the manager,
// graph, and scorer.
func (c *Controller) backgroundProcessor(ctx context.Context) {
	defer c.wg.Done()

	t := time.NewTicker(persistInterval)
	defer t.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handleEvent(ev)
		case <-t.C:
			c.persistState(ctx)
		}
	}
}

func (c *Controller) persistState(ctx context.Context) {
	if err := c.store.PersistManager(ctx, c.manager.Serialize(), c.manager.LastBlockHash()); err != nil {
		c.log.Warnf("unable to persist channel manager: %v", err)
	}
	if err := c.store.PersistGraph(ctx, c.graph.Serialize()); err != nil {
		c.log.Warnf("unable to persist network graph: %v", err)
	}
	if err := c.store.PersistScorer(ctx, c.scorer.Serialize()); err != nil {
		c.log.Warnf("unable to persist scorer: %v", err)
	}
}
