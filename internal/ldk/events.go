package ldk

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Event is the interface implemented by every protocol event the
// background processor hands to the event handler (spec section 4.G).
// Field names mirror the wire-message vocabulary in the teacher's
// lnwire package (funding_locked.go, single_funding_request.go) and the
// original_source Rust event enum.
type Event interface {
	isEvent()
}

// FundingGenerationReady fires once the channel-manager has negotiated
// funding parameters for a new outbound channel and needs the wallet to
// build the funding transaction.
type FundingGenerationReady struct {
	UserChannelID [16]byte
	OutputScript  []byte
	Value         btcutil.Amount
	Counterparty  NodeID
	TempChannelID [32]byte
}

func (FundingGenerationReady) isEvent() {}

// PaymentClaimable fires when an inbound HTLC set matching a known
// preimage has arrived in full.
type PaymentClaimable struct {
	PaymentHash [32]byte
	AmountMsat  uint64
}

func (PaymentClaimable) isEvent() {}

// PaymentClaimed fires once a claimable payment has actually been
// settled on-chain/off-chain.
type PaymentClaimed struct {
	PaymentHash [32]byte
	AmountMsat  uint64
}

func (PaymentClaimed) isEvent() {}

// PaymentSent fires when an outbound payment we originated has been
// fulfilled by its recipient.
type PaymentSent struct {
	PaymentHash     [32]byte
	PaymentPreimage [32]byte
	FeePaidMsat     uint64
}

func (PaymentSent) isEvent() {}

// PaymentFailed fires when an outbound payment could not be completed.
type PaymentFailed struct {
	PaymentHash [32]byte
	Reason      string
}

func (PaymentFailed) isEvent() {}

// PaymentForwarded fires when an HTLC was forwarded through one of our
// channels, carrying the fee we earned.
type PaymentForwarded struct {
	FeeEarnedMsat uint64
}

func (PaymentForwarded) isEvent() {}

// SpendableOutputs fires once on-chain outputs the keys manager can spend
// unilaterally (e.g. after a force-close) become available to sweep.
type SpendableOutputs struct {
	Outputs []SpendableOutputDescriptor
}

func (SpendableOutputs) isEvent() {}

// SpendableOutputDescriptor is an opaque per-output descriptor the keys
// manager needs in order to sign a sweep transaction.
type SpendableOutputDescriptor struct {
	Outpoint wire.OutPoint
	Value    btcutil.Amount
	Script   []byte
}

// ChannelClosed fires once a channel has fully transitioned to closed,
// whatever the cause.
type ChannelClosed struct {
	ChannelOutpoint OutPoint
	Reason          string
}

func (ChannelClosed) isEvent() {}

// DiscardFunding fires when a funding transaction we generated will never
// be broadcast (the counterparty aborted before signing).
type DiscardFunding struct {
	ChannelOutpoint OutPoint
	Transaction     []byte
}

func (DiscardFunding) isEvent() {}

// HTLCIntercepted fires for a forwarded HTLC when interception is
// enabled; kld accepts with the default forwarding policy (spec 4.G).
type HTLCIntercepted struct {
	InterceptID    [32]byte
	PaymentHash    [32]byte
	RequestedNextHop NodeID
}

func (HTLCIntercepted) isEvent() {}

// OpenChannelRequest fires when a remote peer asks to open an inbound
// channel; kld accepts with the default policy (spec 4.G).
type OpenChannelRequest struct {
	TemporaryChannelID [32]byte
	Counterparty       NodeID
	FundingSatoshis    btcutil.Amount
	PushMsat           uint64
}

func (OpenChannelRequest) isEvent() {}
