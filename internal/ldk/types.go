// Package ldk is kld's stand-in for the embedded BOLT-spec protocol
// engine (the Rust "lightning" / LDK crate the original kld wraps). Per
// spec Non-goals the controller does not implement BOLT wire
// cryptography itself; this package implements exactly the operations
// the controller is documented to invoke (spec sections 4.F, 4.G, 9)
// against in-memory/serialized state, so the rest of the module has a
// real collaborator to drive, bootstrap and test against.
package ldk

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// OutPoint is a channel's funding outpoint: its permanent identity
// (spec section 3, "Channel monitor").
type OutPoint struct {
	Txid chainhash.Hash
	Vout uint16
}

// String renders the outpoint the way the teacher's wire.OutPoint.String
// does: "<txid>:<vout>".
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Txid, o.Vout)
}

// Key returns a canonical map/DB key for the outpoint.
func (o OutPoint) Key() string {
	var buf [34]byte
	copy(buf[:32], o.Txid[:])
	binary.BigEndian.PutUint16(buf[32:], o.Vout)
	return string(buf[:])
}

// ParseOutPoint parses the "<txid>:<vout>" form String renders, the
// format the REST API accepts for channel identifiers in path
// parameters and request bodies.
func ParseOutPoint(s string) (OutPoint, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return OutPoint{}, fmt.Errorf("malformed channel id %q, expected <txid>:<vout>", s)
	}
	if len(parts[0]) != 2*chainhash.HashSize {
		return OutPoint{}, fmt.Errorf("malformed channel id %q: txid must be %d hex characters", s, 2*chainhash.HashSize)
	}
	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return OutPoint{}, fmt.Errorf("malformed channel id %q: %w", s, err)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return OutPoint{}, fmt.Errorf("malformed channel id %q: %w", s, err)
	}
	return OutPoint{Txid: *hash, Vout: uint16(vout)}, nil
}

// MonitorBlob is an opaque serialized ChannelMonitor snapshot or update,
// owned exclusively by this package; the persistence layer (internal/
// database) only ever transports these bytes plus a small header (spec
// section 9, "Opaque blobs").
type MonitorBlob []byte

// ManagerBlob is the single opaque serialized ChannelManager aggregate.
type ManagerBlob []byte

// GraphBlob and ScorerBlob are the opaque network-graph and scorer
// serializations (spec section 3).
type GraphBlob []byte
type ScorerBlob []byte

// BestBlock names the chain tip a ChannelManager or ChannelMonitor was
// last synchronized to.
type BestBlock struct {
	Hash   chainhash.Hash
	Height int32
}

// NodeID is a 33-byte compressed secp256k1 public key identifying a peer
// or channel counterparty.
type NodeID [33]byte

func NodeIDFromPubKey(pub *btcec.PublicKey) NodeID {
	var id NodeID
	copy(id[:], pub.SerializeCompressed())
	return id
}

func (n NodeID) String() string {
	return fmt.Sprintf("%x", n[:])
}

// ParseNodeID decodes a hex-encoded compressed public key, the format
// the REST API accepts for node id path parameters and connect/peer
// request bodies.
func ParseNodeID(s string) (NodeID, error) {
	var id NodeID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("malformed node id %q: %w", s, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("node id %q has unexpected length %d, want %d", s, len(raw), len(id))
	}
	copy(id[:], raw)
	return id, nil
}
