package peer

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btclog"

	"github.com/kuutamolabs/kld/internal/ldk"
)

type fakeStore struct {
	mu    sync.Mutex
	peers map[ldk.NodeID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{peers: make(map[ldk.NodeID]string)}
}

func (s *fakeStore) PersistPeer(ctx context.Context, p Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.NodeID] = p.Address
	return nil
}

func (s *fakeStore) DeletePeer(ctx context.Context, nodeID ldk.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, nodeID)
	return nil
}

func (s *fakeStore) FetchPeer(ctx context.Context, nodeID ldk.NodeID) (Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.peers[nodeID]
	if !ok {
		return Peer{}, errNotFound
	}
	return Peer{NodeID: nodeID, Address: addr}, nil
}

func (s *fakeStore) FetchPeers(ctx context.Context) (map[ldk.NodeID]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ldk.NodeID]string, len(s.peers))
	for k, v := range s.peers {
		out[k] = v
	}
	return out, nil
}

type errNotFoundType struct{}

func (errNotFoundType) Error() string { return "peer not found" }

var errNotFound = errNotFoundType{}

type fakeChannelLister struct {
	channels []ldk.Channel
}

func (f *fakeChannelLister) ListChannels() []ldk.Channel { return f.channels }

func randNodeID(t *testing.T) ldk.NodeID {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return ldk.NodeIDFromPubKey(priv.PubKey())
}

func newTestManager(t *testing.T, store Store, channels ChannelLister) *Manager {
	t.Helper()
	return New(Config{
		PeerPort: 0,
		SelfID:   randNodeID(t),
		Store:    store,
		Channels: channels,
		Graph:    ldk.NewNetworkGraph("regtest"),
		Log:      btclog.Disabled,
	})
}

func TestConnectPeerSucceedsAndPersists(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				buf := make([]byte, 1)
				conn.Read(buf)
			}()
		}
	}()

	store := newFakeStore()
	m := newTestManager(t, store, &fakeChannelLister{})
	id := randNodeID(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr, err := ParseNetAddress(ln.Addr().String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.ConnectPeer(ctx, id, addr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !m.isConnected(id) {
		t.Error("expected peer to be tracked as connected")
	}
	if _, err := store.FetchPeer(context.Background(), id); err != nil {
		t.Errorf("expected peer to be persisted: %v", err)
	}
}

func TestConnectPeerIsIdempotentWhenAlreadyConnected(t *testing.T) {
	m := newTestManager(t, newFakeStore(), &fakeChannelLister{})
	id := randNodeID(t)
	m.conns[id] = &connState{closed: make(chan struct{})}

	if err := m.ConnectPeer(context.Background(), id, NetAddress{}); err != nil {
		t.Fatalf("expected already-connected peer to short-circuit, got error: %v", err)
	}
}

func TestConnectPeerRequiresTorProxyForOnionAddress(t *testing.T) {
	m := newTestManager(t, newFakeStore(), &fakeChannelLister{})
	addr, err := ParseNetAddress("abcdefghijklmnop.onion:9735")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.ConnectPeer(context.Background(), randNodeID(t), addr); err == nil {
		t.Error("expected an error connecting to a tor address with no proxy configured")
	}
}

func TestDisconnectByNodeIDRemovesPeerRow(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, &fakeChannelLister{})
	id := randNodeID(t)

	if err := store.PersistPeer(context.Background(), Peer{NodeID: id, Address: "127.0.0.1:9735"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.DisconnectByNodeID(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.FetchPeer(context.Background(), id); err == nil {
		t.Error("expected peer row to be deleted")
	}
}

func TestConnectedPeersReturnsSnapshot(t *testing.T) {
	m := newTestManager(t, newFakeStore(), &fakeChannelLister{})
	a, b := randNodeID(t), randNodeID(t)
	m.conns[a] = &connState{closed: make(chan struct{})}
	m.conns[b] = &connState{closed: make(chan struct{})}

	ids := m.ConnectedPeers()
	if len(ids) != 2 {
		t.Fatalf("got %d connected peers, want 2", len(ids))
	}
}

func TestPadAlias(t *testing.T) {
	short := padAlias("kld")
	if len(short) != 32 {
		t.Fatalf("got len %d, want 32", len(short))
	}

	long := padAlias("this-alias-is-definitely-longer-than-32-bytes")
	if len(long) != 32 {
		t.Fatalf("got len %d, want 32", len(long))
	}
	if long != "this-alias-is-definitely-longer-" {
		t.Errorf("got %q", long)
	}
}
