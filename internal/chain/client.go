// Package chain implements kld's chain client (spec 4.C): a thin JSON-RPC
// wrapper around a full node, giving the rest of the controller the same
// blockchain-info/block/header/synced surface the teacher gets from its
// chainControl wiring in chainregistry.go, minus the neutrino/SPV path
// (dropped, per DESIGN.md — spec 4.C is a full-node poller, not a light
// client).
package chain

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/ticker"
)

// Info mirrors get_blockchain_info's result shape (spec 4.C).
type Info struct {
	Blocks        int64
	BestBlockHash chainhash.Hash
	Synced        bool
}

// Client wraps an rpcclient.Client, adapted from the teacher's
// btcrpcclient.ConnConfig wiring in chainregistry.go (TLS cert,
// user/pass, DisableConnectOnNew) onto the modern
// github.com/btcsuite/btcd/rpcclient.
type Client struct {
	rpc *rpcclient.Client
}

// Config carries the full node's RPC connection parameters.
type Config struct {
	Host     string
	User     string
	Pass     string
	Cert     []byte
	DisableTLS bool
}

// New dials the configured full node in HTTP POST mode (no
// notification websocket, since kld polls for new blocks rather than
// subscribing, per spec 4.F's steady-state SpvClient).
func New(cfg Config) (*Client, error) {
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		Certificates: cfg.Cert,
		DisableTLS:   cfg.DisableTLS,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to chain backend: %w", err)
	}
	return &Client{rpc: rpc}, nil
}

// GetBlockchainInfo implements get_blockchain_info (spec 4.C).
func (c *Client) GetBlockchainInfo(ctx context.Context) (Info, error) {
	info, err := c.rpc.GetBlockChainInfo()
	if err != nil {
		return Info{}, fmt.Errorf("unable to fetch blockchain info: %w", err)
	}
	hash, err := chainhash.NewHashFromStr(info.BestBlockHash)
	if err != nil {
		return Info{}, fmt.Errorf("malformed best block hash %q: %w", info.BestBlockHash, err)
	}
	synced := !info.InitialBlockDownload && info.Headers == info.Blocks
	return Info{Blocks: info.Blocks, BestBlockHash: *hash, Synced: synced}, nil
}

// GetBlock implements get_block (spec 4.C).
func (c *Client) GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	block, err := c.rpc.GetBlock(&hash)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch block %s: %w", hash, err)
	}
	return block, nil
}

// GetHeader implements get_header (spec 4.C) and satisfies
// ldk.ChainSource's single-header lookup leg.
func (c *Client) GetHeader(ctx context.Context, hash chainhash.Hash) (chainhash.Hash, int32, error) {
	header, err := c.rpc.GetBlockHeaderVerbose(&hash)
	if err != nil {
		return chainhash.Hash{}, 0, fmt.Errorf("unable to fetch header %s: %w", hash, err)
	}
	prevHash, err := chainhash.NewHashFromStr(header.PreviousHash)
	if err != nil {
		return chainhash.Hash{}, 0, fmt.Errorf("malformed prev hash for %s: %w", hash, err)
	}
	return *prevHash, header.Height, nil
}

// NextBlockHash implements the forward-walk leg of ldk.ChainSource:
// given a hash, find the hash one block above it, or report there is
// none yet (i.e. hash is already the tip).
func (c *Client) NextBlockHash(ctx context.Context, hash chainhash.Hash) (chainhash.Hash, int32, bool, error) {
	header, err := c.rpc.GetBlockHeaderVerbose(&hash)
	if err != nil {
		return chainhash.Hash{}, 0, false, fmt.Errorf("unable to fetch header %s: %w", hash, err)
	}
	if header.NextHash == "" {
		return chainhash.Hash{}, 0, false, nil
	}
	nextHash, err := chainhash.NewHashFromStr(header.NextHash)
	if err != nil {
		return chainhash.Hash{}, 0, false, fmt.Errorf("malformed next hash for %s: %w", hash, err)
	}
	return *nextHash, header.Height + 1, true, nil
}

// GetBestBlock implements ldk.ChainSource.
func (c *Client) GetBestBlock(ctx context.Context) (chainhash.Hash, int32, error) {
	hash, height, err := c.rpc.GetBestBlock()
	if err != nil {
		return chainhash.Hash{}, 0, fmt.Errorf("unable to fetch best block: %w", err)
	}
	return *hash, height, nil
}

// IsSynchronised implements is_synchronised (spec 4.C): "true iff the
// full-node reports initial_block_download == false and headers ==
// blocks".
func (c *Client) IsSynchronised(ctx context.Context) (bool, error) {
	info, err := c.GetBlockchainInfo(ctx)
	if err != nil {
		return false, err
	}
	return info.Synced, nil
}

// WaitForBlockchainSynchronisation implements
// wait_for_blockchain_synchronisation (spec 4.C): "suspends until
// is_synchronised() holds", polling matching the rest of the chain
// client's poll-don't-subscribe design.
func (c *Client) WaitForBlockchainSynchronisation(ctx context.Context, pollInterval time.Duration) error {
	t := ticker.New(pollInterval)
	t.Resume()
	defer t.Stop()

	for {
		synced, err := c.IsSynchronised(ctx)
		if err != nil {
			return err
		}
		if synced {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Ticks():
		}
	}
}

// BroadcastTransactions implements ldk.Broadcaster: fire-and-forget per
// spec 9 — a rejected broadcast is not retried by this layer, the
// protocol engine is expected to retry via a later SpendableOutputs
// event if the output is still unspent.
func (c *Client) BroadcastTransactions(rawTxs [][]byte) {
	for _, raw := range rawTxs {
		tx := wire.NewMsgTx(wire.TxVersion)
		if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
			continue
		}
		_, _ = c.rpc.SendRawTransaction(tx, false)
	}
}

// EstimateFeePerKW implements ldk.FeeEstimator, applying the same
// never-go-below-floor discipline as the teacher's
// defaultBitcoinForwardingPolicy constants in chainregistry.go.
func (c *Client) EstimateFeePerKW(confTarget uint32) (uint64, error) {
	const minFeePerKW = 253 // 1 sat/vbyte floor, matching btcd's relay minimum.

	mode := btcjson.EstimateSmartFeeConservative
	result, err := c.rpc.EstimateSmartFee(int64(confTarget), &mode)
	if err != nil || result.FeeRate == nil {
		return minFeePerKW, nil
	}
	feePerKW := uint64(*result.FeeRate * 1e8 / 4)
	if feePerKW < minFeePerKW {
		return minFeePerKW, nil
	}
	return feePerKW, nil
}
