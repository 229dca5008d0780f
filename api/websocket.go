package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/kuutamolabs/kld/internal/ldk"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsPingInterval = 30 * time.Second

// wsEvent is the envelope every message on GET /v1/ws carries: a tag
// naming the event so clients can dispatch without relying on JSON
// struct shape alone, plus the event's own fields.
type wsEvent struct {
	Type string      `json:"type"`
	Data ldk.Event   `json:"data"`
}

// handleWebsocket implements GET /v1/ws (spec 4.H): an upgraded
// connection that streams every protocol event the controller's
// background processor handles (payments, channel closes, funding
// events, ...) as they occur, and pings on an interval to detect dead
// clients, matching the teacher's own notification-stream keepalive
// discipline in its client-side rpcclient/notify.go.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.controller.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wsEvent{Type: eventType(ev), Data: ev}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// eventType names a protocol event for the wire envelope's Type tag,
// mirroring the case names the background processor switches on in
// internal/kld's handleEvent.
func eventType(ev ldk.Event) string {
	switch ev.(type) {
	case ldk.FundingGenerationReady:
		return "funding_generation_ready"
	case ldk.PaymentClaimable:
		return "payment_claimable"
	case ldk.PaymentClaimed:
		return "payment_claimed"
	case ldk.PaymentSent:
		return "payment_sent"
	case ldk.PaymentFailed:
		return "payment_failed"
	case ldk.PaymentForwarded:
		return "payment_forwarded"
	case ldk.SpendableOutputs:
		return "spendable_outputs"
	case ldk.ChannelClosed:
		return "channel_closed"
	case ldk.DiscardFunding:
		return "discard_funding"
	case ldk.HTLCIntercepted:
		return "htlc_intercepted"
	case ldk.OpenChannelRequest:
		return "open_channel_request"
	default:
		return fmt.Sprintf("%T", ev)
	}
}
