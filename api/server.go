package api

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/julienschmidt/httprouter"

	"github.com/kuutamolabs/kld/internal/kld"
	"github.com/kuutamolabs/kld/internal/macaroons"
)

// macaroonHeader is the header spec section 4.H names as carrying the
// auth token; its value is the macaroon's hex-encoded serialized bytes
// (spec is silent on the exact encoding; hex matches the convention the
// teacher's own lncli uses for its --macaroonpath-derived headers).
const macaroonHeader = "macaroon"

// drainTimeout is the cancellation sequence's "drains in-flight requests
// for up to 30s" (spec section 5).
const drainTimeout = 30 * time.Second

// Server is kld's REST API (spec 4.H): a TLS-only httprouter server
// authenticated by macaroon, backed by a *kld.Controller.
type Server struct {
	http       *http.Server
	log        btclog.Logger
	controller *kld.Controller
	macaroons  *macaroons.Service
}

// Config carries everything the REST server needs beyond the
// controller.
type Config struct {
	ListenAddress string
	TLSCert       tls.Certificate
	Controller    *kld.Controller
	Macaroons     *macaroons.Service
	Log           btclog.Logger
}

// New builds the REST server and its route table (spec 4.H's exact
// method/path/scope table); it does not start listening.
func New(cfg Config) *Server {
	s := &Server{
		log:        cfg.Log,
		controller: cfg.Controller,
		macaroons:  cfg.Macaroons,
	}

	router := httprouter.New()
	router.GET("/", s.readonly(s.handleRoot))
	router.GET("/v1/getinfo", s.readonly(s.handleGetInfo))
	router.GET("/v1/getBalance", s.readonly(s.handleGetBalance))
	router.GET("/v1/channel/listChannels", s.readonly(s.handleListChannels))
	router.POST("/v1/channel/openChannel", s.admin(s.handleOpenChannel))
	router.POST("/v1/channel/setChannelFee", s.admin(s.handleSetChannelFee))
	router.DELETE("/v1/channel/closeChannel/:id", s.admin(s.handleCloseChannel))
	router.GET("/v1/newaddr", s.admin(s.handleNewAddr))
	router.POST("/v1/withdraw", s.admin(s.handleWithdraw))
	router.GET("/v1/peer/listPeers", s.readonly(s.handleListPeers))
	router.POST("/v1/peer/connect", s.admin(s.handleConnectPeer))
	router.DELETE("/v1/peer/disconnect/:id", s.admin(s.handleDisconnectPeer))
	router.GET("/v1/network/listNode/:id", s.readonly(s.handleListNode))
	router.GET("/v1/network/listNode", s.readonly(s.handleListNode))
	router.GET("/v1/network/listChannel/:id", s.readonly(s.handleListNetworkChannel))
	router.GET("/v1/network/listChannel", s.readonly(s.handleListNetworkChannel))
	router.GET("/v1/ws", s.admin(s.handleWebsocket))

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, cfg.Log, notFound("no such method"))
	})

	s.http = &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: router,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cfg.TLSCert},
			MinVersion:   tls.VersionTLS12,
		},
	}
	return s
}

// Serve binds the listener and serves until Shutdown is called; it
// blocks, matching the teacher's rpcServer's listen-and-serve goroutine
// shape in rpcserver.go's Start.
func (s *Server) Serve() error {
	s.log.Infof("starting REST API on %s", s.http.Addr)
	err := s.http.ListenAndServeTLS("", "")
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("REST API server exited: %w", err)
	}
	return nil
}

// Shutdown stops accepting new connections and drains in-flight
// requests for up to drainTimeout (spec section 5's cancellation step 1).
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, ps httprouter.Params)

// readonly wraps a handler with a macaroon check that accepts either
// scope (spec 4.H's "readonly" column).
func (s *Server) readonly(h handlerFunc) httprouter.Handle {
	return s.withScope(macaroons.ScopeReadonly, h)
}

// admin wraps a handler with a macaroon check that requires the admin
// scope (spec 4.H's "admin" column).
func (s *Server) admin(h handlerFunc) httprouter.Handle {
	return s.withScope(macaroons.ScopeAdmin, h)
}

func (s *Server) withScope(scope macaroons.Scope, h handlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		raw, err := hex.DecodeString(r.Header.Get(macaroonHeader))
		if err != nil {
			writeError(w, s.log, unauthorized("malformed macaroon header"))
			return
		}
		if err := s.macaroons.Verify(raw, scope); err != nil {
			writeError(w, s.log, unauthorized(err.Error()))
			return
		}
		h(w, r, ps)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}
