// Command kld runs the node controller daemon (spec section 2): it
// wires together the chain client, the on-chain wallet, the replicated
// SQL store, and the protocol-engine stand-in, then serves the REST API
// until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btclog"
	walletchain "github.com/btcsuite/btcwallet/chain"

	"github.com/kuutamolabs/kld/api"
	"github.com/kuutamolabs/kld/internal/build"
	"github.com/kuutamolabs/kld/internal/certgen"
	"github.com/kuutamolabs/kld/internal/chain"
	"github.com/kuutamolabs/kld/internal/config"
	"github.com/kuutamolabs/kld/internal/database"
	"github.com/kuutamolabs/kld/internal/kld"
	"github.com/kuutamolabs/kld/internal/macaroons"
	"github.com/kuutamolabs/kld/internal/wallet"
)

// kldMain is the true entry point; it is wrapped by main so top-level
// defers run before exit, matching the teacher's lndMain/main split in
// lnd.go.
func kldMain() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	build.Init(btclog.LevelInfo)
	defer build.Flush()
	log := build.KldLog
	log.Infof("version %s, network %s", build.Version, cfg.BitcoinNetwork)

	tlsCert, err := certgen.EnsureCert(cfg.CertPath(), cfg.KeyPath(), cfg.PublicAddresses)
	if err != nil {
		return fmt.Errorf("unable to load TLS certificate: %w", err)
	}

	macaroonSvc, err := macaroons.NewService(cfg.MacaroonRootKeyPath())
	if err != nil {
		return fmt.Errorf("unable to start macaroon service: %w", err)
	}
	if err := macaroons.MintAndSave(macaroonSvc, cfg.MacaroonPath("admin"), cfg.MacaroonPath("readonly")); err != nil {
		return fmt.Errorf("unable to mint macaroons: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	defer store.Close()

	rpcCert, err := os.ReadFile(cfg.BitcoindCertPath)
	if err != nil {
		return fmt.Errorf("unable to read bitcoind rpc cert: %w", err)
	}

	chainClient, err := chain.New(chain.Config{
		Host:       cfg.BitcoindRPCHost,
		User:       cfg.BitcoindRPCUser,
		Pass:       cfg.BitcoindRPCPassword,
		Cert:       rpcCert,
		DisableTLS: cfg.BitcoindDisableTLS,
	})
	if err != nil {
		return fmt.Errorf("unable to connect to chain backend: %w", err)
	}

	log.Infof("waiting for chain backend to synchronise")
	if err := chainClient.WaitForBlockchainSynchronisation(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("chain backend did not synchronise: %w", err)
	}

	w, err := loadWallet(cfg, rpcCert)
	if err != nil {
		return fmt.Errorf("unable to load wallet: %w", err)
	}

	controller, err := kld.Bootstrap(ctx, kld.Deps{
		Config:   cfg,
		Store:    store,
		Chain:    chainClient,
		Wallet:   w,
		TorProxy: cfg.TorProxy,
		Log:      build.KldLog,
	})
	if err != nil {
		return fmt.Errorf("unable to bootstrap controller: %w", err)
	}

	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("unable to start controller: %w", err)
	}

	restServer := api.New(api.Config{
		ListenAddress: cfg.RestApiAddress,
		TLSCert:       tlsCert,
		Controller:    controller,
		Macaroons:     macaroonSvc,
		Log:           build.ApiLog,
	})

	serveErrs := make(chan error, 1)
	go func() {
		serveErrs <- restServer.Serve()
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-interrupt:
		log.Infof("received %s, shutting down", sig)
	case err := <-serveErrs:
		if err != nil {
			log.Errorf("REST API server exited: %v", err)
		}
	}

	if err := restServer.Shutdown(); err != nil {
		log.Warnf("error shutting down REST API: %v", err)
	}
	if err := controller.Stop(); err != nil {
		log.Warnf("error stopping controller: %v", err)
	}

	log.Infof("shutdown complete")
	return nil
}

// loadWallet opens or creates the on-chain wallet, matching the
// teacher's "derive btcdHost, dial chain.NewRPCClient, hand it to
// btcwallet.New" sequence in chainregistry.go.
func loadWallet(cfg *config.Config, rpcCert []byte) (*wallet.BtcWallet, error) {
	netParams := cfg.BitcoinNetwork.Params()

	rpcClient, err := newWalletChainClient(cfg, rpcCert, netParams)
	if err != nil {
		return nil, err
	}

	return wallet.Load(wallet.LoaderConfig{
		DataDir:     filepath.Join(cfg.DataDir, "wallet"),
		NetParams:   netParams,
		PublicPass:  []byte("public"),
		PrivatePass: []byte(defaultPrivatePass),
		Birthday:    time.Now(),
		ChainClient: rpcClient,
	})
}

// newWalletChainClient dials the same full node as internal/chain.Client
// but over btcwallet's own chain.RPCClient, which SynchronizeRPC needs
// to drive wallet rescans — matching the teacher's
// "chain.NewRPCClient(activeNetParams.Params, btcdHost, btcdUser,
// btcdPass, rpcCert, false, 20)" wiring in chainregistry.go, adapted onto
// the modern github.com/btcsuite/btcwallet/chain import path.
func newWalletChainClient(cfg *config.Config, rpcCert []byte, netParams *chaincfg.Params) (*walletchain.RPCClient, error) {
	rpcClient, err := walletchain.NewRPCClient(
		netParams,
		cfg.BitcoindRPCHost,
		cfg.BitcoindRPCUser,
		cfg.BitcoindRPCPassword,
		rpcCert,
		cfg.BitcoindDisableTLS,
		20,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to dial wallet chain client: %w", err)
	}
	if err := rpcClient.Start(); err != nil {
		return nil, fmt.Errorf("unable to start wallet chain client: %w", err)
	}
	return rpcClient, nil
}

// defaultPrivatePass stands in for an operator-supplied wallet
// passphrase; spec's config enumeration (section 6) names no such
// field, and prompting for one has no place in a daemon meant to run
// unattended under a process supervisor.
const defaultPrivatePass = "kld-default-wallet-passphrase"

func init() {
	runtime.GOMAXPROCS(runtime.NumCPU())
}

func main() {
	if err := kldMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
