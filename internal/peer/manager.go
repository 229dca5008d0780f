// Package peer implements kld's peer manager (spec 4.D): TCP
// listen/accept, connect_peer's poll-for-connected race, the
// keep-channel-peers-connected and node-announcement background tasks,
// and peer disconnect (with its row-delete invariant).
//
// The actor shape — atomic started/shutdown flags, a background query
// loop, an addPeer/removePeer pair — is grounded on the teacher's
// server.go (newServer/Start/Stop/addPeer/removePeer/listener) and
// peer.go (newPeer's atomic started/disconnect flags, connReq-driven
// dial). The BOLT handshake/wire-message machinery peer.go also owns is
// out of spec's scope (treated as the protocol engine's job, spec
// Non-goals); this package only owns the raw TCP connection lifecycle.
package peer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"

	"github.com/btcsuite/btclog"
	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/kuutamolabs/kld/internal/ldk"
)

// ErrPeerDisconnected is returned by ConnectPeer when the connection
// task finishes before is_connected(pub) is observed true (spec 4.D).
var ErrPeerDisconnected = errors.New("peer disconnected before connection was confirmed")

// ErrConnectTimeout is returned when the poll deadline elapses without
// the peer ever reporting connected.
var ErrConnectTimeout = errors.New("timed out waiting for peer connection to establish")

// Peer is the address-book record this package persists and fetches. It
// has the same fields as database.Peer but is a distinct type, so a
// database.Store reaches Store through internal/kld's peerStoreAdapter.
type Peer struct {
	NodeID  ldk.NodeID
	Address string
}

// Store is the address-book subset of database.Store the peer manager
// needs (spec 4.D: persist_peer/delete_peer/fetch_peer/fetch_peers).
type Store interface {
	PersistPeer(ctx context.Context, p Peer) error
	DeletePeer(ctx context.Context, nodeID ldk.NodeID) error
	FetchPeer(ctx context.Context, nodeID ldk.NodeID) (Peer, error)
	FetchPeers(ctx context.Context) (map[ldk.NodeID]string, error)
}

// ChannelLister is the ChannelManager subset keep_channel_peers_connected
// diffs against (spec 4.D).
type ChannelLister interface {
	ListChannels() []ldk.Channel
}

const connectPollInterval = time.Second

// connectDeadline is the Open Question spec section 9 leaves to the
// implementation ("connect_peer poll deadline: spec leaves this
// unspecified"); DESIGN.md records 30s as the chosen value.
const connectDeadline = 30 * time.Second

// connState tracks one live connection, closed()'s result doubling as
// the "connection task finished" signal ConnectPeer races against.
type connState struct {
	conn   net.Conn
	closed chan struct{}
}

// Manager owns every live peer connection plus the two background tasks
// that keep channel counterparties connected and periodically announce
// this node, matching the teacher's server struct's peers map and
// actor-style background loops.
type Manager struct {
	started  int32
	shutdown int32

	peerPort        int
	nodeAlias       string
	publicAddresses []string
	torProxy        string // empty disables onion dialing.

	store    Store
	channels ChannelLister
	graph    *ldk.NetworkGraph
	selfID   ldk.NodeID

	mu    sync.RWMutex
	conns map[ldk.NodeID]*connState

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup

	log btclog.Logger
}

// Config carries everything Manager needs at construction (spec section
// 9: no global state, dependency injection at the protocol boundary).
type Config struct {
	PeerPort        int
	NodeAlias       string
	PublicAddresses []string
	TorProxy        string
	SelfID          ldk.NodeID
	Store           Store
	Channels        ChannelLister
	Graph           *ldk.NetworkGraph
	Log             btclog.Logger
}

func New(cfg Config) *Manager {
	return &Manager{
		peerPort:        cfg.PeerPort,
		nodeAlias:       cfg.NodeAlias,
		publicAddresses: cfg.PublicAddresses,
		torProxy:        cfg.TorProxy,
		selfID:          cfg.SelfID,
		store:           cfg.Store,
		channels:        cfg.Channels,
		graph:           cfg.Graph,
		conns:           make(map[ldk.NodeID]*connState),
		quit:            make(chan struct{}),
		log:             cfg.Log,
	}
}

// Start binds the listener and launches the accept loop plus both
// background tasks (spec 4.D: listen, keep_channel_peers_connected,
// regularly_broadcast_node_announcement).
func (m *Manager) Start() error {
	if !atomic.CompareAndSwapInt32(&m.started, 0, 1) {
		return nil
	}

	l, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", m.peerPort))
	if err != nil {
		return errors.Errorf("unable to listen on peer port %d: %s", m.peerPort, err)
	}
	m.listener = l

	m.wg.Add(3)
	go m.acceptLoop()
	go m.keepChannelPeersConnected()
	go m.regularlyBroadcastNodeAnnouncement()

	return nil
}

// Stop closes the listener, disconnects every peer, and waits for the
// background tasks to exit.
func (m *Manager) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.shutdown, 0, 1) {
		return nil
	}
	close(m.quit)
	if m.listener != nil {
		_ = m.listener.Close()
	}
	m.DisconnectAllPeers()
	m.wg.Wait()
	return nil
}

func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-m.quit:
				return
			default:
				m.log.Warnf("accept failed: %v", err)
				continue
			}
		}
		// The protocol engine owns the handshake that identifies the
		// remote node id; this layer only tracks the raw socket until
		// ConnectPeer/disconnect bookkeeping needs it.
		go m.handleInbound(conn)
	}
}

func (m *Manager) handleInbound(conn net.Conn) {
	<-m.quit
	_ = conn.Close()
}

// isConnected implements is_connected(pub) (spec 4.D).
func (m *Manager) isConnected(id ldk.NodeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[id]
	return ok
}

// ConnectedPeers implements get_peer_node_ids: a lock-free-in-spirit
// snapshot read of the connected-peer map, used by listPeers (spec
// 4.D/4.H).
func (m *Manager) ConnectedPeers() []ldk.NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]ldk.NodeID, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	return ids
}

// dial opens the raw TCP connection, routing onion addresses through the
// configured SOCKS5 proxy the way brontide.Dial does via
// tor.ClientConfig in the teacher's connmgr wiring.
func (m *Manager) dial(addr NetAddress) (net.Conn, error) {
	if addr.IsTor() {
		if m.torProxy == "" {
			return nil, errors.Errorf("peer address %s requires tor but no proxy is configured", addr)
		}
		dialer, err := proxy.SOCKS5("tcp", m.torProxy, nil, proxy.Direct)
		if err != nil {
			return nil, errors.Errorf("unable to build tor dialer: %s", err)
		}
		return dialer.Dial("tcp", addr.String())
	}
	return net.DialTimeout("tcp", addr.String(), connectDeadline)
}

// ConnectPeer implements connect_peer (spec 4.D): if already connected,
// succeed immediately; otherwise dial, persist the peer record, then
// poll every 1s up to connectDeadline for is_connected(pub), racing
// against the connection task finishing first.
func (m *Manager) ConnectPeer(ctx context.Context, id ldk.NodeID, addr NetAddress) error {
	if m.isConnected(id) {
		return nil
	}

	conn, err := m.dial(addr)
	if err != nil {
		return errors.Errorf("unable to connect to %s at %s: %s", id, addr, err)
	}

	state := &connState{conn: conn, closed: make(chan struct{})}
	m.mu.Lock()
	m.conns[id] = state
	m.mu.Unlock()
	go m.monitorConn(id, state)

	if err := m.store.PersistPeer(ctx, Peer{NodeID: id, Address: addr.String()}); err != nil {
		m.log.Warnf("unable to persist peer %s: %v", id, err)
	}

	pollTicker := ticker.New(connectPollInterval)
	pollTicker.Resume()
	defer pollTicker.Stop()
	deadline := time.NewTimer(connectDeadline)
	defer deadline.Stop()

	for {
		select {
		case <-state.closed:
			return ErrPeerDisconnected
		case <-pollTicker.Ticks():
			if m.isConnected(id) {
				return nil
			}
		case <-deadline.C:
			return ErrConnectTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) monitorConn(id ldk.NodeID, state *connState) {
	buf := make([]byte, 1)
	for {
		if _, err := state.conn.Read(buf); err != nil {
			m.mu.Lock()
			if m.conns[id] == state {
				delete(m.conns, id)
			}
			m.mu.Unlock()
			close(state.closed)
			return
		}
	}
}

// DisconnectByNodeID implements disconnect_by_node_id: the only
// operation that removes a peer row (spec 4.D invariant).
func (m *Manager) DisconnectByNodeID(ctx context.Context, id ldk.NodeID) error {
	m.mu.Lock()
	state, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	m.mu.Unlock()

	if ok {
		_ = state.conn.Close()
	}
	return m.store.DeletePeer(ctx, id)
}

// DisconnectAllPeers is best-effort, used on shutdown.
func (m *Manager) DisconnectAllPeers() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[ldk.NodeID]*connState)
	m.mu.Unlock()

	for _, state := range conns {
		_ = state.conn.Close()
	}
}

// keepChannelPeersConnected implements the background reconnect task
// (spec 4.D): every 1s, diff open-channel counterparties against
// connected node-ids, and attempt reconnect for any with a known
// address. Failures are swallowed and retried next tick.
func (m *Manager) keepChannelPeersConnected() {
	defer m.wg.Done()

	t := ticker.New(connectPollInterval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-t.Ticks():
			m.reconnectMissingChannelPeers()
		}
	}
}

func (m *Manager) reconnectMissingChannelPeers() {
	ctx := context.Background()
	for _, ch := range m.channels.ListChannels() {
		id := ch.Counterparty.NodeID
		if m.isConnected(id) {
			continue
		}
		record, err := m.store.FetchPeer(ctx, id)
		if err != nil {
			continue
		}
		addr, err := ParseNetAddress(record.Address)
		if err != nil {
			continue
		}
		if err := m.ConnectPeer(ctx, id, addr); err != nil {
			m.log.Debugf("reconnect to channel counterparty %s failed: %v", id, err)
		}
	}
}

const nodeAnnouncementInterval = 60 * time.Second

// regularlyBroadcastNodeAnnouncement implements the periodic
// announcement task (spec 4.D): every 60s, broadcast an announcement
// carrying the alias (padded/truncated to 32 bytes) and the configured
// public addresses — skipped entirely if no public addresses are
// configured. ldk.NetworkNode has no color field, so no color is sent.
func (m *Manager) regularlyBroadcastNodeAnnouncement() {
	defer m.wg.Done()

	if len(m.publicAddresses) == 0 {
		return
	}

	t := ticker.New(nodeAnnouncementInterval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-t.Ticks():
			m.broadcastNodeAnnouncement()
		}
	}
}

func (m *Manager) broadcastNodeAnnouncement() {
	m.graph.UpdateNode(ldk.NetworkNode{
		NodeID:    m.selfID,
		Alias:     padAlias(m.nodeAlias),
		Addresses: m.publicAddresses,
	})
	m.log.Debugf("announced node %s with %d addresses", m.selfID, len(m.publicAddresses))
}

// padAlias truncates or zero-pads alias to the 32-byte BOLT7 alias
// field width.
func padAlias(alias string) string {
	const aliasLen = 32
	if len(alias) >= aliasLen {
		return alias[:aliasLen]
	}
	padded := make([]byte, aliasLen)
	copy(padded, alias)
	return string(padded)
}
