package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/julienschmidt/httprouter"

	"github.com/kuutamolabs/kld/internal/build"
	"github.com/kuutamolabs/kld/internal/ldk"
)

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

// handleGetInfo implements GET /v1/getinfo (spec 4.H), reproducing the
// original implementation's get_info.rs field set.
func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()

	height, synced, err := s.controller.ChainTip(ctx)
	if err != nil {
		writeError(w, s.log, internalServerError(err))
		return
	}

	// The stand-in protocol engine does not track a channel's pending/
	// active/inactive state machine (spec Non-goals); every tracked
	// channel is reported active.
	channels := s.controller.Manager().ListChannels()

	network := s.controller.Network()
	writeJSON(w, http.StatusOK, GetInfo{
		IdentityPubkey:      s.controller.SelfID().String(),
		Alias:               s.controller.Alias(),
		NumPendingChannels:  0,
		NumActiveChannels:   len(channels),
		NumInactiveChannels: 0,
		NumPeers:            s.controller.NumPeers(),
		BlockHeight:         height,
		SyncedToChain:       synced,
		Testnet:             network != "bitcoin",
		Chains:              []Chain{{Chain: "bitcoin", Network: network}},
		Version:             build.Version,
	})
}

// handleGetBalance implements GET /v1/getBalance.
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	bal, err := s.controller.Wallet().BalanceSats()
	if err != nil {
		writeError(w, s.log, internalServerError(err))
		return
	}
	writeJSON(w, http.StatusOK, WalletBalance{
		TotalBalance: int64(bal),
		ConfBalance:  int64(bal),
	})
}

// handleListChannels implements GET /v1/channel/listChannels.
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	channels := s.controller.Manager().ListChannels()
	out := make([]Channel, len(channels))
	for i, ch := range channels {
		out[i] = channelDTO(ch)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOpenChannel implements POST /v1/channel/openChannel.
func (s *Server) handleOpenChannel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req FundChannel
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.log, badRequest(err))
		return
	}
	if req.SatoshiAmount <= 0 {
		writeError(w, s.log, badRequest(fmt.Errorf("satoshis must be positive")))
		return
	}
	counterparty, err := ldk.ParseNodeID(req.ID)
	if err != nil {
		writeError(w, s.log, badRequest(err))
		return
	}

	tx, err := s.controller.OpenChannel(counterparty, btcutil.Amount(req.SatoshiAmount), req.PushMsat, req.FeeRate)
	if err != nil {
		writeError(w, s.log, internalServerError(err))
		return
	}
	txid := tx.TxHash()
	writeJSON(w, http.StatusOK, FundChannelResponse{Txid: txid.String()})
}

// handleSetChannelFee implements POST /v1/channel/setChannelFee.
func (s *Server) handleSetChannelFee(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req ChannelFee
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.log, badRequest(err))
		return
	}
	outpoint, err := ldk.ParseOutPoint(req.ID)
	if err != nil {
		writeError(w, s.log, badRequest(err))
		return
	}
	if err := s.controller.SetChannelFee(outpoint, req.BaseFeeMsat, req.FeeRatePPM); err != nil {
		writeError(w, s.log, notFound(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, SetChannelFeeResponse{
		ID:          req.ID,
		BaseFeeMsat: req.BaseFeeMsat,
		FeeRatePPM:  req.FeeRatePPM,
	})
}

// handleCloseChannel implements DELETE /v1/channel/closeChannel/:id.
func (s *Server) handleCloseChannel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	outpoint, err := ldk.ParseOutPoint(ps.ByName("id"))
	if err != nil {
		writeError(w, s.log, badRequest(err))
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if err := s.controller.CloseChannel(outpoint, force); err != nil {
		writeError(w, s.log, notFound(err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleNewAddr implements GET /v1/newaddr.
func (s *Server) handleNewAddr(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	addr, err := s.controller.Wallet().NewAddress()
	if err != nil {
		writeError(w, s.log, internalServerError(err))
		return
	}
	writeJSON(w, http.StatusOK, NewAddressResponse{Address: addr.String()})
}

// handleWithdraw implements POST /v1/withdraw.
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req WalletTransfer
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.log, badRequest(err))
		return
	}
	if req.Satoshis <= 0 {
		writeError(w, s.log, badRequest(fmt.Errorf("satoshis must be positive")))
		return
	}
	addr, err := btcutil.DecodeAddress(req.Address, nil)
	if err != nil {
		writeError(w, s.log, badRequest(fmt.Errorf("malformed address %q: %w", req.Address, err)))
		return
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		writeError(w, s.log, badRequest(err))
		return
	}

	txid, err := s.controller.Wallet().SendOutputs(
		[]*wire.TxOut{wire.NewTxOut(req.Satoshis, script)}, req.FeeRate)
	if err != nil {
		writeError(w, s.log, internalServerError(err))
		return
	}
	writeJSON(w, http.StatusOK, WalletTransferResponse{Txid: txid.String()})
}

// handleListPeers implements GET /v1/peer/listPeers.
func (s *Server) handleListPeers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	connected := make(map[string]bool)
	for _, id := range s.controller.Peers().ConnectedPeers() {
		connected[id.String()] = true
	}
	out := make([]Peer, 0, len(connected))
	for id := range connected {
		out = append(out, Peer{ID: id, Connected: true})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleConnectPeer implements POST /v1/peer/connect.
func (s *Server) handleConnectPeer(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req ConnectPeer
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.log, badRequest(err))
		return
	}
	id, address, err := splitPeerURI(req.ID)
	if err != nil {
		writeError(w, s.log, badRequest(err))
		return
	}
	if err := s.controller.ConnectPeer(r.Context(), id, address); err != nil {
		writeError(w, s.log, internalServerError(err))
		return
	}
	writeJSON(w, http.StatusOK, id.String())
}

// handleDisconnectPeer implements DELETE /v1/peer/disconnect/:id.
func (s *Server) handleDisconnectPeer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ldk.ParseNodeID(ps.ByName("id"))
	if err != nil {
		writeError(w, s.log, badRequest(err))
		return
	}
	if err := s.controller.DisconnectPeer(r.Context(), id); err != nil {
		writeError(w, s.log, notFound(err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleListNode implements GET /v1/network/listNode[/:id].
func (s *Server) handleListNode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	graph := s.controller.Graph()

	if idParam := ps.ByName("id"); idParam != "" {
		id, err := ldk.ParseNodeID(idParam)
		if err != nil {
			writeError(w, s.log, badRequest(err))
			return
		}
		node, ok := graph.Node(id)
		if !ok {
			writeJSON(w, http.StatusOK, []NetworkNode{})
			return
		}
		writeJSON(w, http.StatusOK, []NetworkNode{networkNodeDTO(node)})
		return
	}

	nodes := graph.Nodes()
	out := make([]NetworkNode, len(nodes))
	for i, n := range nodes {
		out[i] = networkNodeDTO(n)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListNetworkChannel implements GET /v1/network/listChannel[/:id].
func (s *Server) handleListNetworkChannel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	graph := s.controller.Graph()

	if idParam := ps.ByName("id"); idParam != "" {
		scid, err := parseShortChannelID(idParam)
		if err != nil {
			writeError(w, s.log, badRequest(err))
			return
		}
		ch, ok := graph.ChannelByShortID(scid)
		if !ok {
			writeError(w, s.log, notFound("no such channel"))
			return
		}
		writeJSON(w, http.StatusOK, []NetworkChannel{networkChannelDTO(ch)})
		return
	}

	channels := graph.Channels()
	out := make([]NetworkChannel, len(channels))
	for i, ch := range channels {
		out[i] = networkChannelDTO(ch)
	}
	writeJSON(w, http.StatusOK, out)
}
