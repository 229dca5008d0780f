package wallet

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/chain"
	base "github.com/btcsuite/btcwallet/wallet"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb" // registers the "bdb" driver.
)

const walletDBTimeout = 60 * time.Second

// LoaderConfig carries everything Load needs to open or create the
// on-disk wallet database, adapted from the teacher's btcwallet.Config
// (chainregistry.go's walletConfig: PrivatePass/DataDir/NetParams/
// ChainSource), here pointed at the real base wallet package directly
// instead of through the teacher's private lnwallet/btcwallet wrapper.
type LoaderConfig struct {
	DataDir     string
	NetParams   *chaincfg.Params
	PublicPass  []byte
	PrivatePass []byte
	Birthday    time.Time
	ChainClient *chain.RPCClient
}

// Load opens the wallet database in DataDir, creating a fresh wallet on
// first start, then hooks it up to the configured chain backend and
// starts its background goroutines, matching the teacher's "open or
// create, then wallet.Startup()" sequence in chainregistry.go.
func Load(cfg LoaderConfig) (*BtcWallet, error) {
	dbPath := filepath.Join(cfg.DataDir, "wallet.db")

	db, err := walletdb.Open("bdb", dbPath, true, walletDBTimeout)
	if err != nil {
		db, err = create(dbPath, cfg)
		if err != nil {
			return nil, err
		}
	}

	w, err := base.Open(db, cfg.PublicPass, nil, cfg.NetParams, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to open wallet: %w", err)
	}

	w.SynchronizeRPC(cfg.ChainClient)
	w.Start()

	return New(w), nil
}

func create(dbPath string, cfg LoaderConfig) (walletdb.DB, error) {
	db, err := walletdb.Create("bdb", dbPath, true, walletDBTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet database at %s: %w", dbPath, err)
	}

	seed, err := newHDSeed()
	if err != nil {
		return nil, err
	}

	if err := base.Create(
		db, cfg.PublicPass, cfg.PrivatePass, seed, cfg.NetParams, cfg.Birthday,
	); err != nil {
		return nil, fmt.Errorf("unable to create wallet: %w", err)
	}
	return db, nil
}

func newHDSeed() ([]byte, error) {
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		return nil, fmt.Errorf("unable to generate wallet seed: %w", err)
	}
	return seed, nil
}
