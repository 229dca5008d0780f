package kld

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcd/txscript"

	"github.com/kuutamolabs/kld/internal/ldk"
)

// paymentInfo is the in-memory bookkeeping the event handler maintains
// for PaymentClaimable/Claimed/Sent/Failed (spec 4.G: "update in-memory
// payment-info tables; log").
type paymentInfo struct {
	mu       sync.RWMutex
	claimable map[[32]byte]uint64
	claimed   map[[32]byte]uint64
	sent      map[[32]byte]uint64
	failed    map[[32]byte]string
}

func newPaymentInfo() *paymentInfo {
	return &paymentInfo{
		claimable: make(map[[32]byte]uint64),
		claimed:   make(map[[32]byte]uint64),
		sent:      make(map[[32]byte]uint64),
		failed:    make(map[[32]byte]string),
	}
}

// OpenChannel implements create_channel's API-facing half (spec 4.E/4.G):
// begin an outbound open, register the caller's fee rate under the
// resulting user_channel_id, and block until the event handler has
// funded and handed the transaction to the channel manager.
func (c *Controller) OpenChannel(counterparty ldk.NodeID, amountSats btcutil.Amount, pushMsat uint64, feeRateSatPerKw uint64) (*wire.MsgTx, error) {
	userChannelID, err := c.manager.CreateChannel(counterparty, amountSats, pushMsat)
	if err != nil {
		return nil, err
	}

	receiver := c.funding.Insert(userChannelID, pendingFunding{
		feeRateSatPerKw: feeRateSatPerKw,
		counterparty:    counterparty,
	})

	// The stand-in protocol engine has no independent negotiation delay
	// before FundingGenerationReady; the controller synthesizes the event
	// itself once negotiation parameters (here, a placeholder P2WSH
	// output script) are known, matching the real engine's eventual
	// callback shape (spec 4.G).
	outputScript, err := placeholderFundingScript()
	if err != nil {
		return nil, err
	}
	var tempChannelID [32]byte
	copy(tempChannelID[:], userChannelID[:])

	c.events <- ldk.FundingGenerationReady{
		UserChannelID: userChannelID,
		OutputScript:  outputScript,
		Value:         amountSats,
		Counterparty:  counterparty,
		TempChannelID: tempChannelID,
	}

	result, err := receiver.Recv()
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(result.tx)); err != nil {
		return nil, fmt.Errorf("unable to decode funded transaction: %w", err)
	}
	return tx, nil
}

// placeholderFundingScript stands in for the 2-of-2 multisig witness
// script the protocol engine negotiates with the counterparty before
// emitting FundingGenerationReady; the exact script is the engine's
// responsibility (spec Non-goals: BOLT cryptography out of scope).
func placeholderFundingScript() ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	zero := make([]byte, 32)
	builder.AddData(zero)
	return builder.Script()
}

// handleEvent dispatches a single protocol event (spec 4.G). It is
// called serially from backgroundProcessor, matching spec section 5's
// "event dispatch ... serialized by the background processor".
func (c *Controller) handleEvent(ev ldk.Event) {
	defer c.subs.publish(ev)

	switch e := ev.(type) {
	case ldk.FundingGenerationReady:
		c.handleFundingGenerationReady(e)
	case ldk.PaymentClaimable:
		c.payments.mu.Lock()
		c.payments.claimable[e.PaymentHash] = e.AmountMsat
		c.payments.mu.Unlock()
		c.log.Infof("payment claimable: hash=%x amount_msat=%d", e.PaymentHash, e.AmountMsat)
	case ldk.PaymentClaimed:
		c.payments.mu.Lock()
		c.payments.claimed[e.PaymentHash] = e.AmountMsat
		delete(c.payments.claimable, e.PaymentHash)
		c.payments.mu.Unlock()
		c.log.Infof("payment claimed: hash=%x amount_msat=%d", e.PaymentHash, e.AmountMsat)
	case ldk.PaymentSent:
		c.payments.mu.Lock()
		c.payments.sent[e.PaymentHash] = e.FeePaidMsat
		c.payments.mu.Unlock()
		c.log.Infof("payment sent: hash=%x fee_paid_msat=%d", e.PaymentHash, e.FeePaidMsat)
	case ldk.PaymentFailed:
		c.payments.mu.Lock()
		c.payments.failed[e.PaymentHash] = e.Reason
		c.payments.mu.Unlock()
		c.log.Warnf("payment failed: hash=%x reason=%s", e.PaymentHash, e.Reason)
	case ldk.PaymentForwarded:
		c.log.Infof("payment forwarded: fee_earned_msat=%d", e.FeeEarnedMsat)
	case ldk.SpendableOutputs:
		c.handleSpendableOutputs(e)
	case ldk.ChannelClosed:
		c.log.Infof("channel closed: outpoint=%s reason=%s", e.ChannelOutpoint, e.Reason)
	case ldk.DiscardFunding:
		c.log.Infof("funding discarded: outpoint=%s", e.ChannelOutpoint)
	case ldk.HTLCIntercepted:
		c.log.Debugf("htlc intercepted: payment_hash=%x, accepting with default policy", e.PaymentHash)
	case ldk.OpenChannelRequest:
		c.log.Infof("inbound channel request from %s for %d sats, accepting with default policy",
			e.Counterparty, e.FundingSatoshis)
	default:
		c.log.Warnf("unrecognised protocol event %T", ev)
	}
}

func (c *Controller) handleFundingGenerationReady(e ldk.FundingGenerationReady) {
	pending, respond, ok := c.funding.Get(e.UserChannelID)
	if !ok {
		c.log.Warnf("funding ready for unknown user_channel_id %x", e.UserChannelID)
		return
	}

	tx, err := c.wallet.FundTx(e.OutputScript, e.Value, pending.feeRateSatPerKw)
	if err != nil {
		respond(nil, fmt.Errorf("unable to fund channel: %w", err))
		return
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		respond(nil, fmt.Errorf("unable to serialize funding transaction: %w", err))
		return
	}
	txBytes := buf.Bytes()

	outpoint := ldk.OutPoint{Txid: tx.TxHash(), Vout: 0}
	if err := c.manager.FundingTransactionGenerated(e.TempChannelID, e.Counterparty, txBytes, outpoint); err != nil {
		respond(nil, fmt.Errorf("channel manager rejected funding transaction: %w", err))
		return
	}

	respond(&fundingResult{tx: txBytes}, nil)
}

func (c *Controller) handleSpendableOutputs(e ldk.SpendableOutputs) {
	sweeper, ok := c.wallet.(ldk.SweepAddress)
	if !ok {
		c.log.Warnf("spendable outputs available but wallet cannot source a sweep address")
		return
	}

	tx, err := c.keys.SignSweepTransaction(e.Outputs, sweeper)
	if err != nil {
		c.log.Warnf("unable to build sweep transaction: %v", err)
		return
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		c.log.Warnf("unable to serialize sweep transaction: %v", err)
		return
	}
	c.chainSrc.BroadcastTransactions([][]byte{buf.Bytes()})
}
