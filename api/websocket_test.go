package api

import (
	"encoding/json"
	"testing"

	"github.com/kuutamolabs/kld/internal/ldk"
)

func TestEventTypeNamesEveryControllerEvent(t *testing.T) {
	cases := []struct {
		ev   ldk.Event
		want string
	}{
		{ldk.FundingGenerationReady{}, "funding_generation_ready"},
		{ldk.PaymentClaimable{}, "payment_claimable"},
		{ldk.PaymentClaimed{}, "payment_claimed"},
		{ldk.PaymentSent{}, "payment_sent"},
		{ldk.PaymentFailed{}, "payment_failed"},
		{ldk.PaymentForwarded{}, "payment_forwarded"},
		{ldk.SpendableOutputs{}, "spendable_outputs"},
		{ldk.ChannelClosed{}, "channel_closed"},
		{ldk.DiscardFunding{}, "discard_funding"},
		{ldk.HTLCIntercepted{}, "htlc_intercepted"},
		{ldk.OpenChannelRequest{}, "open_channel_request"},
	}
	for _, c := range cases {
		if got := eventType(c.ev); got != c.want {
			t.Errorf("eventType(%T) = %q, want %q", c.ev, got, c.want)
		}
	}
}

func TestWsEventEncodesTypeAndData(t *testing.T) {
	ev := ldk.PaymentSent{PaymentHash: [32]byte{1, 2, 3}, FeePaidMsat: 42}
	raw, err := json.Marshal(wsEvent{Type: eventType(ev), Data: ev})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			FeePaidMsat uint64 `json:"FeePaidMsat"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unexpected error decoding: %v", err)
	}
	if decoded.Type != "payment_sent" {
		t.Errorf("got type %q, want %q", decoded.Type, "payment_sent")
	}
	if decoded.Data.FeePaidMsat != 42 {
		t.Errorf("got fee_paid_msat %d, want 42", decoded.Data.FeePaidMsat)
	}
}
