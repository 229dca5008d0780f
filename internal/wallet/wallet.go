// Package wallet is kld's on-chain wallet contract (spec 4.D): key
// derivation, UTXO selection, transaction signing and broadcast, "not
// specified here beyond its contract" per spec's own Non-goals. The
// contract surface below — NewAddress/FundTx/SendOutputs — mirrors the
// narrow lnwallet.WalletController-style interface the teacher's
// rpcserver.go calls through (r.server.lnwallet.NewAddress(account),
// r.server.lnwallet.SendOutputs(outputs, account, feeSatPerByte)),
// implemented here against the real btcwallet package rather than the
// teacher's private wrapper type.
package wallet

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	base "github.com/btcsuite/btcwallet/wallet"
	"github.com/btcsuite/btcwallet/waddrmgr"

	"github.com/kuutamolabs/kld/internal/ldk"
)

// defaultAccount/defaultScope mirror the teacher's single-account,
// single-scope model (rpcserver.go's waddrmgr.DefaultAccountNum); kld
// has no multi-account wallet concept in spec.
var (
	defaultAccount = waddrmgr.DefaultAccountNum
	defaultScope   = waddrmgr.KeyScopeBIP0084
)

// Wallet is the contract the controller is built against. It is kept
// deliberately narrow per spec's Non-goals ("the wallet's on-chain UTXO
// management ... we specify only the operations the controller invokes
// on it").
type Wallet interface {
	NewAddress() (btcutil.Address, error)
	FundTx(outputScript []byte, value btcutil.Amount, feeRateSatPerKw uint64) (*wire.MsgTx, error)
	SendOutputs(outputs []*wire.TxOut, feeRateSatPerKw uint64) (*chainhash.Hash, error)
	BalanceSats() (btcutil.Amount, error)
}

// BtcWallet wraps a btcwallet instance as Wallet, and also implements
// ldk.SweepAddress so KeysManager can source fresh sweep addresses from
// it directly (spec: "implementations should consider using a fresh,
// unused address per sweep for privacy").
type BtcWallet struct {
	mu sync.Mutex // serializes address derivation, matching rpcserver.go's KeyGenMtx.
	w  *base.Wallet
}

func New(w *base.Wallet) *BtcWallet {
	return &BtcWallet{w: w}
}

var _ Wallet = (*BtcWallet)(nil)
var _ ldk.SweepAddress = (*BtcWallet)(nil)

// NewAddress implements Wallet's new_address operation.
func (b *BtcWallet) NewAddress() (btcutil.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	addr, err := b.w.NewAddress(defaultAccount, defaultScope)
	if err != nil {
		return nil, fmt.Errorf("unable to derive new address: %w", err)
	}
	return addr, nil
}

// NewSweepAddress implements ldk.SweepAddress.
func (b *BtcWallet) NewSweepAddress() (btcutil.Address, error) {
	return b.NewAddress()
}

// FundTx implements wallet.fund_tx (spec 4.G: FundingGenerationReady
// handling): build and sign a transaction paying value to outputScript
// at the given fee rate, without broadcasting it — the funding
// transaction is handed to channel_manager.funding_transaction_generated
// and only broadcast once the channel negotiation completes.
func (b *BtcWallet) FundTx(outputScript []byte, value btcutil.Amount, feeRateSatPerKw uint64) (*wire.MsgTx, error) {
	output := wire.NewTxOut(int64(value), outputScript)
	satPerKb := btcutil.Amount(feeRateSatPerKw * 4)

	authored, err := b.w.CreateSimpleTx(
		&defaultScope, defaultAccount, []*wire.TxOut{output},
		1, satPerKb, base.CoinSelectionLargest, false,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fund transaction: %w", err)
	}
	return authored.Tx, nil
}

// SendOutputs implements wallet.send_outputs, used by the /v1/withdraw
// REST handler: build, sign, and broadcast a transaction paying outputs.
func (b *BtcWallet) SendOutputs(outputs []*wire.TxOut, feeRateSatPerKw uint64) (*chainhash.Hash, error) {
	satPerKb := btcutil.Amount(feeRateSatPerKw * 4)

	tx, err := b.w.SendOutputs(outputs, &defaultScope, defaultAccount, 1, satPerKb, base.CoinSelectionLargest, "")
	if err != nil {
		return nil, fmt.Errorf("unable to send outputs: %w", err)
	}
	txid := tx.TxHash()
	return &txid, nil
}

// BalanceSats backs GET /v1/getBalance.
func (b *BtcWallet) BalanceSats() (btcutil.Amount, error) {
	bal, err := b.w.CalculateBalance(1)
	if err != nil {
		return 0, fmt.Errorf("unable to calculate balance: %w", err)
	}
	return bal, nil
}
