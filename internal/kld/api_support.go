package kld

import (
	"context"
	"fmt"

	"github.com/kuutamolabs/kld/internal/ldk"
	"github.com/kuutamolabs/kld/internal/peer"
)

// Alias is this node's configured display name (spec 4.H GetInfo).
func (c *Controller) Alias() string { return c.cfg.NodeName }

// Network is the configured Bitcoin network (spec 4.H GetInfo's
// testnet/chains fields).
func (c *Controller) Network() string { return string(c.cfg.BitcoinNetwork) }

// ChainTip returns the chain height the controller last synchronized to
// and whether the full node currently reports itself synced, backing
// GetInfo's block_height/synced_to_chain fields.
func (c *Controller) ChainTip(ctx context.Context) (height int32, synced bool, err error) {
	_, height, err = c.chainSrc.GetBestBlock(ctx)
	if err != nil {
		return 0, false, err
	}
	synced, err = c.chainSrc.IsSynchronised(ctx)
	if err != nil {
		return height, false, err
	}
	return height, synced, nil
}

// NumPeers backs GetInfo's num_peers field.
func (c *Controller) NumPeers() int { return len(c.peerMgr.ConnectedPeers()) }

// CloseChannel wraps the channel manager's cooperative close for the
// DELETE /v1/channel/closeChannel/:id route.
func (c *Controller) CloseChannel(outpoint ldk.OutPoint, force bool) error {
	if force {
		return c.manager.ForceCloseChannel(outpoint)
	}
	return c.manager.CloseChannel(outpoint)
}

// SetChannelFee updates the forwarding policy for an existing channel
// (POST /v1/channel/setChannelFee).
func (c *Controller) SetChannelFee(outpoint ldk.OutPoint, baseFeeMsat, feeRatePPM uint32) error {
	return c.manager.SetChannelFee(outpoint, baseFeeMsat, feeRatePPM)
}

// ConnectPeer dials and registers a peer by node id and network address
// (POST /v1/peer/connect).
func (c *Controller) ConnectPeer(ctx context.Context, id ldk.NodeID, address string) error {
	addr, err := peer.ParseNetAddress(address)
	if err != nil {
		return fmt.Errorf("malformed peer address %q: %w", address, err)
	}
	return c.peerMgr.ConnectPeer(ctx, id, addr)
}

// DisconnectPeer removes a peer by node id (DELETE /v1/peer/disconnect/:id).
func (c *Controller) DisconnectPeer(ctx context.Context, id ldk.NodeID) error {
	return c.peerMgr.DisconnectByNodeID(ctx, id)
}
