package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btcsuite/btclog"
)

// These exercise the request-validation paths of each handler that return
// before ever touching s.controller, so a bare *Server (no wired
// kld.Controller) is enough to drive them.

func newUnwiredServer() *Server {
	return &Server{log: btclog.Disabled}
}

func TestHandleOpenChannelRejectsMalformedBody(t *testing.T) {
	s := newUnwiredServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/channel/openChannel", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.handleOpenChannel(rec, req, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleOpenChannelRejectsNonPositiveAmount(t *testing.T) {
	s := newUnwiredServer()
	body := `{"id":"aa","satoshis":0}`
	req := httptest.NewRequest(http.MethodPost, "/v1/channel/openChannel", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleOpenChannel(rec, req, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleOpenChannelRejectsMalformedCounterparty(t *testing.T) {
	s := newUnwiredServer()
	body := `{"id":"not-a-pubkey","satoshis":100000}`
	req := httptest.NewRequest(http.MethodPost, "/v1/channel/openChannel", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleOpenChannel(rec, req, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSetChannelFeeRejectsMalformedOutpoint(t *testing.T) {
	s := newUnwiredServer()
	body := `{"id":"not-an-outpoint","base_fee_msat":1,"fee_rate_ppm":1}`
	req := httptest.NewRequest(http.MethodPost, "/v1/channel/setChannelFee", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleSetChannelFee(rec, req, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleWithdrawRejectsNonPositiveSatoshis(t *testing.T) {
	s := newUnwiredServer()
	body := `{"address":"bcrt1qaddress","satoshis":0}`
	req := httptest.NewRequest(http.MethodPost, "/v1/withdraw", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleWithdraw(rec, req, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleWithdrawRejectsMalformedAddress(t *testing.T) {
	s := newUnwiredServer()
	body := `{"address":"not-a-valid-address","satoshis":1000}`
	req := httptest.NewRequest(http.MethodPost, "/v1/withdraw", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleWithdraw(rec, req, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleConnectPeerRejectsMalformedURI(t *testing.T) {
	s := newUnwiredServer()
	body := `{"id":"no-at-sign"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/peer/connect", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleConnectPeer(rec, req, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
