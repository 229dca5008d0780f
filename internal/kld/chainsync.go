package kld

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/kuutamolabs/kld/internal/ldk"
)

// monitorListener adapts a *ldk.ChannelMonitor to ldk.ChainListener for
// the bootstrap catch-up walk, before the monitor has been registered
// with the chain-monitor proper (spec 4.F: "for each loaded monitor
// (monitor_blockhash, &(monitor, broadcaster, fee_estimator, logger))").
// Once synchronizeListeners returns, watch_channel takes over delivery
// and this adapter is discarded.
type monitorListener struct {
	monitor *ldk.ChannelMonitor
}

func (m monitorListener) BlockConnected(hash chainhash.Hash, height int32) {
	m.monitor.BlockConnected(hash, height, 0, false)
}

func (m monitorListener) BlockDisconnected(hash chainhash.Hash, height int32) {}

func (m monitorListener) LastBlockHash() chainhash.Hash {
	return m.monitor.BestBlockHash()
}

// runChainSync implements spec 4.F's "chain-sync task": wait for the
// full node to be synchronised, walk every listener forward from its own
// recorded block hash to the common tip, register every monitor with the
// chain-monitor, then hand steady-state polling to an SpvClient.
func (c *Controller) runChainSync(ctx context.Context) error {
	if err := c.chainSrc.WaitForBlockchainSynchronisation(ctx, time.Second); err != nil {
		return fmt.Errorf("unable to wait for blockchain synchronisation: %w", err)
	}

	listeners := make([]ldk.ListenerEntry, 0, 1+len(c.monitors))
	listeners = append(listeners, ldk.ListenerEntry{
		LastBlockHash: c.manager.LastBlockHash(),
		Listener:      c.manager,
	})
	for _, m := range c.monitors {
		listeners = append(listeners, ldk.ListenerEntry{
			LastBlockHash: m.BestBlockHash(),
			Listener:      monitorListener{monitor: m},
		})
	}

	cache := ldk.NewHeaderCache()
	if err := ldk.SynchronizeListeners(ctx, c.chainSrc, cache, listeners); err != nil {
		return fmt.Errorf("unable to synchronize chain listeners: %w", err)
	}

	for _, m := range c.monitors {
		result := c.chainMonitor.WatchChannel(m.FundingOutpoint(), m)
		if result != ldk.Completed {
			return fmt.Errorf("fatal: watch_channel for %s returned %s instead of completed",
				m.FundingOutpoint(), result)
		}
	}

	combined := ldk.NewMultiListener(c.chainMonitor, c.manager)
	spv := ldk.NewSpvClient(c.chainSrc, combined)

	c.wg.Add(1)
	go c.pollChainTip(ctx, spv)
	return nil
}

// pollChainTip is the steady-state poller (spec 4.F): every 1s, poll for
// a new tip; log and continue on transient errors.
func (c *Controller) pollChainTip(ctx context.Context, spv *ldk.SpvClient) {
	defer c.wg.Done()

	t := ticker.New(time.Second)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ctx.Done():
			return
		case <-t.Ticks():
			if err := spv.PollBestTip(ctx); err != nil {
				c.log.Warnf("chain tip poll failed: %v", err)
			}
		}
	}
}
