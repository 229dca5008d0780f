// Package kld implements the node controller: the subsystem that
// composes the protocol engine (internal/ldk) with its external
// collaborators — a Bitcoin full-node client, the replicated SQL store,
// the peer-network listener, and a background event processor (spec
// section 2, 4.F/4.G).
//
// Bootstrap follows the teacher's lndMain/newServer two-phase shape
// (lnd.go constructs every subsystem in a fixed order before server.go's
// Start launches the goroutines that drive them); the fourteen-step
// ordering itself is spec 4.F's, not the teacher's, since the teacher
// wires together a different protocol engine.
package kld

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/lightningnetwork/lnd/healthcheck"

	"github.com/kuutamolabs/kld/internal/asyncreq"
	"github.com/kuutamolabs/kld/internal/config"
	"github.com/kuutamolabs/kld/internal/database"
	"github.com/kuutamolabs/kld/internal/ldk"
	"github.com/kuutamolabs/kld/internal/peer"
	"github.com/kuutamolabs/kld/internal/wallet"
)

// ChainSource is the chain surface the controller drives bootstrap and
// steady-state sync against; *internal/chain.Client satisfies it.
type ChainSource interface {
	ldk.ChainSource
	ldk.FeeEstimator
	ldk.Broadcaster
	IsSynchronised(ctx context.Context) (bool, error)
	WaitForBlockchainSynchronisation(ctx context.Context, pollInterval time.Duration) error
}

// pendingFunding is what the async table stores between CreateChannel and
// the FundingGenerationReady event arriving: the caller-chosen fee rate
// the wallet should use (spec 4.E: "keyed by a random user_channel_id
// ... to retrieve the caller's fee-rate").
type pendingFunding struct {
	feeRateSatPerKw uint64
	counterparty    ldk.NodeID
}

// fundingResult is what CreateChannel's caller eventually receives once
// the event handler has funded and handed off the transaction (spec
// 4.G's "respond Ok(transaction) to the API caller, else Err").
type fundingResult struct {
	tx []byte
}

// Deps is everything Bootstrap needs from the outside world.
type Deps struct {
	Config   *config.Config
	Store    database.Store
	Chain    ChainSource
	Wallet   wallet.Wallet
	TorProxy string
	Log      btclog.Logger
}

// Controller owns every long-lived subsystem and the two background
// tasks spec 4.F names: the event processor and the chain-sync/poll
// task. It is the single object cmd/kld and api/ are built against.
type Controller struct {
	cfg *config.Config
	log btclog.Logger

	chainSrc ChainSource
	wallet   wallet.Wallet
	store    database.Store

	keys         *ldk.KeysManager
	graph        *ldk.NetworkGraph
	scorer       *ldk.Scorer
	router       *ldk.Router
	gossipSync   *ldk.GossipSync
	manager      *ldk.ChannelManager
	chainMonitor *ldk.ChainMonitor
	monitors     []*ldk.ChannelMonitor
	peerMgr      *peer.Manager

	funding  *asyncreq.Table[[16]byte, pendingFunding, *fundingResult]
	events   chan ldk.Event
	subs     *eventBroadcaster
	payments *paymentInfo
	liveness *healthcheck.Monitor

	selfID ldk.NodeID

	shutdown int32
	quit     chan struct{}
	wg       sync.WaitGroup
}

// Manager exposes the ChannelManager for API handlers (listChannels,
// openChannel, closeChannel, setChannelFee).
func (c *Controller) Manager() *ldk.ChannelManager { return c.manager }

// Graph exposes the network graph for API handlers (listNode,
// listChannel).
func (c *Controller) Graph() *ldk.NetworkGraph { return c.graph }

// Peers exposes the peer manager for API handlers (listPeers, connect,
// disconnect).
func (c *Controller) Peers() *peer.Manager { return c.peerMgr }

// Wallet exposes the wallet for API handlers (getBalance, newaddr,
// withdraw).
func (c *Controller) Wallet() wallet.Wallet { return c.wallet }

// SelfID is this node's own identity, used by GetInfo.
func (c *Controller) SelfID() ldk.NodeID { return c.selfID }

func randomSeed32() ([32]byte, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return seed, fmt.Errorf("unable to generate random seed: %w", err)
	}
	return seed, nil
}
