package kld

import (
	"context"

	"github.com/kuutamolabs/kld/internal/database"
	"github.com/kuutamolabs/kld/internal/ldk"
	"github.com/kuutamolabs/kld/internal/peer"
)

// peerStoreAdapter lets a database.Store satisfy peer.Store: the two
// packages each define their own Peer struct (database's carries the
// persistence layer's column shape, peer's is the protocol-facing view),
// so Go's structural typing doesn't bridge them without this explicit
// conversion, the same role the teacher's channeldb wrappers play when
// handing bolt-backed types to higher layers expecting their own.
type peerStoreAdapter struct {
	store database.Store
}

func (a peerStoreAdapter) PersistPeer(ctx context.Context, p peer.Peer) error {
	return a.store.PersistPeer(ctx, database.Peer{NodeID: p.NodeID, Address: p.Address})
}

func (a peerStoreAdapter) DeletePeer(ctx context.Context, nodeID ldk.NodeID) error {
	return a.store.DeletePeer(ctx, nodeID)
}

func (a peerStoreAdapter) FetchPeer(ctx context.Context, nodeID ldk.NodeID) (peer.Peer, error) {
	p, err := a.store.FetchPeer(ctx, nodeID)
	if err != nil {
		return peer.Peer{}, err
	}
	return peer.Peer{NodeID: p.NodeID, Address: p.Address}, nil
}

func (a peerStoreAdapter) FetchPeers(ctx context.Context) (map[ldk.NodeID]string, error) {
	return a.store.FetchPeers(ctx)
}
