// Package api implements kld's REST control surface (spec 4.H): a
// macaroon-authenticated, TLS-only JSON API over the controller, grounded
// on the teacher's rpcserver.go in shape (one handler per RPC, a thin
// request/response struct per call) but routed with httprouter/plain
// JSON instead of gRPC, since spec.md names no gRPC surface.
package api

import "github.com/kuutamolabs/kld/internal/ldk"

// GetInfo is the response to GET /v1/getinfo, matching the original
// implementation's get_info.rs field set exactly.
type GetInfo struct {
	IdentityPubkey      string  `json:"identity_pubkey"`
	Alias               string  `json:"alias"`
	NumPendingChannels  int     `json:"num_pending_channels"`
	NumActiveChannels   int     `json:"num_active_channels"`
	NumInactiveChannels int     `json:"num_inactive_channels"`
	NumPeers            int     `json:"num_peers"`
	BlockHeight         int32   `json:"block_height"`
	SyncedToChain       bool    `json:"synced_to_chain"`
	Testnet             bool    `json:"testnet"`
	Chains              []Chain `json:"chains"`
	Version             string  `json:"version"`
}

// Chain names one chain backend GetInfo reports against.
type Chain struct {
	Chain   string `json:"chain"`
	Network string `json:"network"`
}

// WalletBalance is the response to GET /v1/getBalance.
type WalletBalance struct {
	TotalBalance       int64 `json:"total_balance"`
	ConfBalance        int64 `json:"conf_balance"`
	UnconfBalance      int64 `json:"unconf_balance"`
}

// Channel is one entry in the listChannels response.
type Channel struct {
	ID             string `json:"id"`
	ConnectedNode  string `json:"connected_node"`
	ShortChannelID uint64 `json:"short_channel_id,omitempty"`
	CapacitySats   int64  `json:"capacity_sats"`
	LocalBalance   int64  `json:"local_balance_sats"`
	RemoteBalance  int64  `json:"remote_balance_sats"`
	IsPublic       bool   `json:"public"`
}

// FundChannel is the request body for POST /v1/channel/openChannel.
type FundChannel struct {
	ID            string `json:"id"`
	SatoshiAmount int64  `json:"satoshis"`
	PushMsat      uint64 `json:"push_msat"`
	FeeRate       uint64 `json:"fee_rate,omitempty"`
	Announce      bool   `json:"announce"`
}

// FundChannelResponse is the response to openChannel.
type FundChannelResponse struct {
	Txid string `json:"tx_id"`
}

// ChannelFee is the request body for POST /v1/channel/setChannelFee.
type ChannelFee struct {
	ID         string `json:"id"`
	BaseFeeMsat uint32 `json:"base_fee_msat"`
	FeeRatePPM  uint32 `json:"fee_rate_ppm"`
}

// SetChannelFeeResponse is the response to setChannelFee.
type SetChannelFeeResponse struct {
	ID          string `json:"id"`
	BaseFeeMsat uint32 `json:"base_fee_msat"`
	FeeRatePPM  uint32 `json:"fee_rate_ppm"`
}

// NewAddress is the optional request body for GET /v1/newaddr.
type NewAddress struct {
	AddressType string `json:"address_type,omitempty"`
}

// NewAddressResponse is the response to newaddr.
type NewAddressResponse struct {
	Address string `json:"address"`
}

// WalletTransfer is the request body for POST /v1/withdraw.
type WalletTransfer struct {
	Address   string `json:"address"`
	Satoshis  int64  `json:"satoshis"`
	FeeRate   uint64 `json:"fee_rate,omitempty"`
}

// WalletTransferResponse is the response to withdraw.
type WalletTransferResponse struct {
	Txid string `json:"tx_id"`
}

// Peer is one entry in the listPeers response.
type Peer struct {
	ID        string `json:"id"`
	Connected bool   `json:"connected"`
	Address   string `json:"netaddr,omitempty"`
}

// ConnectPeer is the request body for POST /v1/peer/connect.
type ConnectPeer struct {
	ID string `json:"id"`
}

// NetworkNode is one entry in listNode responses.
type NetworkNode struct {
	NodeID    string   `json:"nodeid"`
	Alias     string   `json:"alias"`
	Addresses []string `json:"addresses"`
}

// NetworkChannel is one entry in listChannel responses.
type NetworkChannel struct {
	ShortChannelID uint64 `json:"short_channel_id"`
	Source         string `json:"source"`
	Destination    string `json:"destination"`
	CapacitySats   int64  `json:"capacity_sats"`
}

// Error is the body every non-2xx response carries (spec section 7).
// Status is the numeric code plus its reason phrase (e.g. "400 Bad
// Request"), matching the original node's StatusCode::to_string().
type Error struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func channelDTO(ch ldk.Channel) Channel {
	return Channel{
		ID:             ch.Outpoint.String(),
		ConnectedNode:  ch.Counterparty.NodeID.String(),
		ShortChannelID: ch.ShortChannelID,
		CapacitySats:   int64(ch.CapacitySats),
		LocalBalance:   int64(ch.LocalBalance),
		RemoteBalance:  int64(ch.RemoteBalance),
		IsPublic:       ch.IsPublic,
	}
}

func networkNodeDTO(n ldk.NetworkNode) NetworkNode {
	return NetworkNode{
		NodeID:    n.NodeID.String(),
		Alias:     n.Alias,
		Addresses: n.Addresses,
	}
}

func networkChannelDTO(ch ldk.NetworkChannel) NetworkChannel {
	return NetworkChannel{
		ShortChannelID: ch.ShortChannelID,
		Source:         ch.NodeOne.String(),
		Destination:    ch.NodeTwo.String(),
		CapacitySats:   ch.CapacitySats,
	}
}
