package ldk

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ChannelMonitor is the per-channel durable state a node must retain in
// order to unilaterally close a channel on-chain and punish a cheating
// counterparty (spec GLOSSARY). It tracks a strictly increasing update_id
// (spec section 3 invariant) and can be snapshotted to/rehydrated from
// MonitorBlob bytes by the persistence layer.
//
// The breach-detection responsibility this type owns is modelled on the
// teacher's dedicated breachArbiter subsystem (breacharbiter.go):
// ChannelMonitor.BlockConnected plus ChainMonitor's block-connected path
// record revoked commitment heights reported for a block. No penalty
// transaction is built or broadcast in this package.
type ChannelMonitor struct {
	mu sync.Mutex

	outpoint    OutPoint
	updateID    uint64
	bestBlock   BestBlock
	closed      bool
	spendClaimed bool

	// revokedCommitments records commitment heights we've seen our
	// counterparty broadcast out of turn, pending justice-transaction
	// broadcast.
	revokedCommitments map[uint64]struct{}
}

// NewChannelMonitor creates the in-memory monitor for a freshly funded
// channel, starting at update_id 0.
func NewChannelMonitor(outpoint OutPoint, bestBlock BestBlock) *ChannelMonitor {
	return &ChannelMonitor{
		outpoint:            outpoint,
		bestBlock:           bestBlock,
		revokedCommitments:  make(map[uint64]struct{}),
	}
}

// FundingOutpoint returns the channel's permanent identity.
func (m *ChannelMonitor) FundingOutpoint() OutPoint {
	return m.outpoint
}

// GetLatestUpdateID returns the highest update_id folded into this
// monitor, used by P3 (spec section 8) to confirm monotonic application
// of snapshots+updates.
func (m *ChannelMonitor) GetLatestUpdateID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateID
}

// BestBlockHash returns the block hash this monitor last observed, which
// chain-sync uses as the listener's starting point (spec 4.F).
func (m *ChannelMonitor) BestBlockHash() chainhash.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bestBlock.Hash
}

// ApplyUpdate records an incremental update by advancing update_id by
// exactly one; it takes only the update id, not the update's contents. Applying an update out of order is a
// programming error in the caller (the persistence layer is required to
// replay updates in update_id order, spec section 5).
func (m *ChannelMonitor) ApplyUpdate(updateID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if updateID != m.updateID+1 {
		return fmt.Errorf("monitor %s: out-of-order update_id %d, expected %d",
			m.outpoint, updateID, m.updateID+1)
	}
	m.updateID = updateID
	return nil
}

// BlockConnected advances the monitor's recorded best block and scans for
// a revoked commitment broadcast by the counterparty, the same
// responsibility breacharbiter.go's contractObserver discharges per
// block.
func (m *ChannelMonitor) BlockConnected(hash chainhash.Hash, height int32, revokedHeight uint64, revoked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bestBlock = BestBlock{Hash: hash, Height: height}
	if revoked {
		m.revokedCommitments[revokedHeight] = struct{}{}
	}
}

// HasRevokedCommitment reports whether a breach has been observed and not
// yet punished, i.e. whether a justice transaction still needs broadcast.
func (m *ChannelMonitor) HasRevokedCommitment() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.revokedCommitments) > 0
}

// MarkClosed records that the channel has closed on-chain. A monitor row
// may only be deleted once MarkClosed and MarkSpendClaimed have both been
// called (spec section 3 invariant).
func (m *ChannelMonitor) MarkClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// MarkSpendClaimed records that the channel's spendable outputs have been
// swept.
func (m *ChannelMonitor) MarkSpendClaimed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spendClaimed = true
}

// Deletable reports whether this monitor's row may be garbage collected
// from the store.
func (m *ChannelMonitor) Deletable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed && m.spendClaimed
}

// Serialize produces the opaque snapshot blob the persistence layer
// stores alongside the outpoint and update_id (spec section 3). The wire
// format itself is not spec'd — only that it round-trips through
// Deserialize.
func (m *ChannelMonitor) Serialize() MonitorBlob {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, 0, 64)
	buf = append(buf, m.bestBlock.Hash[:]...)
	buf = appendUint32(buf, uint32(m.bestBlock.Height))
	buf = appendUint64(buf, m.updateID)
	if m.closed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	if m.spendClaimed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DeserializeChannelMonitor rehydrates a monitor from its funding
// outpoint and a snapshot blob produced by Serialize.
func DeserializeChannelMonitor(outpoint OutPoint, blob MonitorBlob) (*ChannelMonitor, error) {
	if len(blob) < 32+4+8+2 {
		return nil, fmt.Errorf("monitor blob for %s too short: %d bytes", outpoint, len(blob))
	}
	var hash chainhash.Hash
	copy(hash[:], blob[:32])
	height := int32(readUint32(blob[32:36]))
	updateID := readUint64(blob[36:44])

	m := &ChannelMonitor{
		outpoint:           outpoint,
		bestBlock:          BestBlock{Hash: hash, Height: height},
		updateID:           updateID,
		closed:             blob[44] == 1,
		spendClaimed:       blob[45] == 1,
		revokedCommitments: make(map[uint64]struct{}),
	}
	return m, nil
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
func appendUint64(b []byte, v uint64) []byte {
	for i := 7; i >= 0; i-- {
		b = append(b, byte(v>>(8*uint(i))))
	}
	return b
}
func readUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func readUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
