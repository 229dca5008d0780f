package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/kuutamolabs/kld/internal/config"
	"github.com/kuutamolabs/kld/internal/ldk"
)

// persistRetryBaseDelay/MaxDelay/Window parameterize the channel-monitor
// write path's bounded-backoff retry (spec 4.B's "Failure semantics":
// "retried with exponential backoff capped at a bounded window").
const (
	persistRetryBaseDelay = 200 * time.Millisecond
	persistRetryMaxDelay  = 5 * time.Second
	persistRetryWindow    = 30 * time.Second
)

// Postgres is the Store implementation backing a production node (spec
// 4.B: "a replicated SQL backend"). It follows the teacher's DB wrapper
// shape in channeldb/db.go — a thin struct around the driver handle plus
// a migration step run once at Open — with bolt buckets replaced by SQL
// tables and pgx replacing the embedded KV driver.
type Postgres struct {
	pool *pgxpool.Pool
	clk  clock.Clock

	// syncing is true while a channel-monitor write is being retried
	// against a transiently unavailable backend; the controller's
	// liveness monitor reads it via Syncing() (spec 4.B).
	syncing atomic.Bool
}

// Open connects to the configured database and brings its schema up to
// date before returning.
func Open(ctx context.Context, cfg config.Database) (*Postgres, error) {
	dsn := dsnFromConfig(cfg)

	if err := runMigrations(dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database connection pool: %w", err)
	}
	return &Postgres{pool: pool, clk: clock.NewDefaultClock()}, nil
}

// Syncing implements Store.
func (p *Postgres) Syncing() bool { return p.syncing.Load() }

func dsnFromConfig(cfg config.Database) string {
	dsn := fmt.Sprintf("postgres://%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Name)
	if cfg.ClientCertPath != "" {
		dsn += fmt.Sprintf("?sslmode=verify-full&sslrootcert=%s&sslcert=%s&sslkey=%s",
			cfg.CACertPath, cfg.ClientCertPath, cfg.ClientKeyPath)
	}
	return dsn
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// IsFirstStart implements Store.
func (p *Postgres) IsFirstStart(ctx context.Context) (bool, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM node_identity WHERE id = 1`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("unable to query node_identity: %w", err)
	}
	return count == 0, nil
}

// PersistKeys implements Store. Per spec section 3, the identity row is
// written exactly once and never updated thereafter.
func (p *Postgres) PersistKeys(ctx context.Context, pub *btcec.PublicKey, priv [32]byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO node_identity (id, public_key, private_key) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		pub.SerializeCompressed(), priv[:])
	if err != nil {
		return fmt.Errorf("unable to persist node identity: %w", err)
	}
	return nil
}

func (p *Postgres) FetchKeys(ctx context.Context) (*btcec.PublicKey, [32]byte, error) {
	var priv [32]byte
	var pubBytes, privBytes []byte
	err := p.pool.QueryRow(ctx, `SELECT public_key, private_key FROM node_identity WHERE id = 1`).
		Scan(&pubBytes, &privBytes)
	if err == pgx.ErrNoRows {
		return nil, priv, ErrKeysNotFound
	}
	if err != nil {
		return nil, priv, fmt.Errorf("unable to fetch node identity: %w", err)
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return nil, priv, fmt.Errorf("corrupt persisted public key: %w", err)
	}
	copy(priv[:], privBytes)
	return pub, priv, nil
}

// PersistPeer implements Store (upsert, since re-persisting an already
// known peer's address is a legitimate update).
func (p *Postgres) PersistPeer(ctx context.Context, peer Peer) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO peers (node_id, address) VALUES ($1, $2)
		 ON CONFLICT (node_id) DO UPDATE SET address = excluded.address`,
		peer.NodeID[:], peer.Address)
	if err != nil {
		return fmt.Errorf("unable to persist peer: %w", err)
	}
	return nil
}

func (p *Postgres) DeletePeer(ctx context.Context, id ldk.NodeID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM peers WHERE node_id = $1`, id[:])
	if err != nil {
		return fmt.Errorf("unable to delete peer: %w", err)
	}
	return nil
}

func (p *Postgres) FetchPeer(ctx context.Context, id ldk.NodeID) (Peer, error) {
	var address string
	err := p.pool.QueryRow(ctx, `SELECT address FROM peers WHERE node_id = $1`, id[:]).Scan(&address)
	if err == pgx.ErrNoRows {
		return Peer{}, ErrPeerNotFound
	}
	if err != nil {
		return Peer{}, fmt.Errorf("unable to fetch peer: %w", err)
	}
	return Peer{NodeID: id, Address: address}, nil
}

func (p *Postgres) FetchPeers(ctx context.Context) (map[ldk.NodeID]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT node_id, address FROM peers`)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch peers: %w", err)
	}
	defer rows.Close()

	out := make(map[ldk.NodeID]string)
	for rows.Next() {
		var idBytes []byte
		var address string
		if err := rows.Scan(&idBytes, &address); err != nil {
			return nil, fmt.Errorf("unable to scan peer row: %w", err)
		}
		var id ldk.NodeID
		copy(id[:], idBytes)
		out[id] = address
	}
	return out, rows.Err()
}

// PersistNewChannel implements the durability contract (spec section
// 4.B): Completed once the insert is durably committed, PermanentFailure
// on a write error that retrying can never fix (e.g. a malformed blob or
// a constraint violation), and InProgress if the bounded retry window
// elapses while the backend is still only transiently unreachable — the
// chain-monitor must not force-close on that outcome.
func (p *Postgres) PersistNewChannel(ctx context.Context, outpoint ldk.OutPoint, monitor ldk.MonitorBlob, updateID uint64) ldk.UpdateResult {
	framed, err := frameBlob(monitor)
	if err != nil {
		return ldk.PermanentFailure
	}
	return p.retryWrite(ctx, func(ctx context.Context) error {
		_, err := p.pool.Exec(ctx,
			`INSERT INTO channel_monitors (outpoint, update_id, blob) VALUES ($1, $2, $3)`,
			outpointKey(outpoint), updateID, framed)
		return err
	})
}

// UpdatePersistedChannel appends an incremental update row, with the same
// retry/InProgress/PermanentFailure semantics as PersistNewChannel (spec
// 4.B). Only a PermanentFailure here kills the channel; InProgress just
// means the next chain event will try again.
func (p *Postgres) UpdatePersistedChannel(ctx context.Context, outpoint ldk.OutPoint, updateID uint64, update ldk.MonitorBlob) ldk.UpdateResult {
	framed, err := frameBlob(update)
	if err != nil {
		return ldk.PermanentFailure
	}
	return p.retryWrite(ctx, func(ctx context.Context) error {
		_, err := p.pool.Exec(ctx,
			`INSERT INTO channel_monitor_updates (outpoint, update_id, blob) VALUES ($1, $2, $3)`,
			outpointKey(outpoint), updateID, framed)
		return err
	})
}

// retryWrite runs write with the production retry configuration.
func (p *Postgres) retryWrite(ctx context.Context, write func(context.Context) error) ldk.UpdateResult {
	return retryPersistWrite(ctx, p.clk, persistRetryBaseDelay, persistRetryMaxDelay, persistRetryWindow, &p.syncing, write)
}

// retryPersistWrite retries write on a transient error with exponential
// backoff capped at maxDelay, for up to window in total, before giving up
// with InProgress. syncing is set true for the duration of any retry so
// the liveness monitor can surface it. A call that ends in Completed or
// PermanentFailure clears it; a call that gives up with InProgress leaves
// it set.
// Parameterized over clk/baseDelay/maxDelay/window so tests can drive it
// without waiting out the production window.
func retryPersistWrite(
	ctx context.Context,
	clk clock.Clock,
	baseDelay, maxDelay, window time.Duration,
	syncing *atomic.Bool,
	write func(context.Context) error,
) ldk.UpdateResult {
	deadline := clk.Now().Add(window)
	delay := baseDelay

	for {
		err := write(ctx)
		if err == nil {
			syncing.Store(false)
			return ldk.Completed
		}
		if !isTransientPersistError(err) {
			syncing.Store(false)
			return ldk.PermanentFailure
		}

		syncing.Store(true)
		if clk.Now().Add(delay).After(deadline) {
			return ldk.InProgress
		}

		select {
		case <-ctx.Done():
			return ldk.InProgress
		case <-clk.TickAfter(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// isTransientPersistError classifies a write failure as retryable (spec
// 4.B: "transient connection loss") versus unrecoverable. A *pgconn.PgError
// carrying a connection-exception or operator-intervention SQLSTATE class
// (network drop, admin shutdown, crash recovery) is transient; any other
// PgError (constraint violation, data exception, ...) is not. An error
// with no PgError at all is transient only if it is a net.Error (dial
// failure, timeout, connection refused) or context.DeadlineExceeded;
// any other error is treated as permanent.
func isTransientPersistError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08", "57":
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}

// FetchChannelMonitors rehydrates every monitor by applying its snapshot
// then every update strictly in update_id order (spec 4.B).
func (p *Postgres) FetchChannelMonitors(ctx context.Context, keys *ldk.KeysManager) ([]MonitorRow, error) {
	rows, err := p.pool.Query(ctx, `SELECT outpoint, blob FROM channel_monitors`)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch channel monitors: %w", err)
	}

	type snapshot struct {
		outpoint ldk.OutPoint
		blob     []byte
	}
	var snapshots []snapshot
	for rows.Next() {
		var key []byte
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("unable to scan monitor row: %w", err)
		}
		op, err := outpointFromKey(key)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snapshots = append(snapshots, snapshot{outpoint: op, blob: blob})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]MonitorRow, 0, len(snapshots))
	for _, s := range snapshots {
		payload, err := unframeBlob(s.blob)
		if err != nil {
			return nil, fmt.Errorf("unable to unframe monitor blob for %s: %w", s.outpoint, err)
		}
		monitor, err := ldk.DeserializeChannelMonitor(s.outpoint, ldk.MonitorBlob(payload))
		if err != nil {
			return nil, fmt.Errorf("unable to deserialize monitor %s: %w", s.outpoint, err)
		}

		updateRows, err := p.pool.Query(ctx,
			`SELECT update_id FROM channel_monitor_updates WHERE outpoint = $1 ORDER BY update_id ASC`,
			outpointKey(s.outpoint))
		if err != nil {
			return nil, fmt.Errorf("unable to fetch updates for %s: %w", s.outpoint, err)
		}
		for updateRows.Next() {
			var updateID uint64
			if err := updateRows.Scan(&updateID); err != nil {
				updateRows.Close()
				return nil, err
			}
			if err := monitor.ApplyUpdate(updateID); err != nil {
				updateRows.Close()
				return nil, fmt.Errorf("monitor %s: %w", s.outpoint, err)
			}
		}
		updateRows.Close()
		if err := updateRows.Err(); err != nil {
			return nil, err
		}

		out = append(out, MonitorRow{BlockHash: monitor.BestBlockHash(), Monitor: monitor})
	}
	return out, nil
}

// PersistManager overwrites the single aggregate channel-manager row
// (spec section 3: "a single serialized blob").
func (p *Postgres) PersistManager(ctx context.Context, blob ldk.ManagerBlob, bestBlockHash chainhash.Hash) error {
	framed, err := frameBlob(blob)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO channel_manager (id, best_block_hash, blob) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET best_block_hash = excluded.best_block_hash, blob = excluded.blob`,
		bestBlockHash[:], framed)
	if err != nil {
		return fmt.Errorf("unable to persist channel manager: %w", err)
	}
	return nil
}

func (p *Postgres) FetchChannelManager(ctx context.Context) (chainhash.Hash, ldk.ManagerBlob, error) {
	var hashBytes, blob []byte
	err := p.pool.QueryRow(ctx, `SELECT best_block_hash, blob FROM channel_manager WHERE id = 1`).
		Scan(&hashBytes, &blob)
	if err == pgx.ErrNoRows {
		return chainhash.Hash{}, nil, ErrManagerNotFound
	}
	if err != nil {
		return chainhash.Hash{}, nil, fmt.Errorf("unable to fetch channel manager: %w", err)
	}
	payload, err := unframeBlob(blob)
	if err != nil {
		return chainhash.Hash{}, nil, fmt.Errorf("unable to unframe channel manager blob: %w", err)
	}
	var hash chainhash.Hash
	copy(hash[:], hashBytes)
	return hash, payload, nil
}

func (p *Postgres) PersistGraph(ctx context.Context, blob ldk.GraphBlob) error {
	framed, err := frameBlob(blob)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO network_graph (id, blob) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET blob = excluded.blob`,
		framed)
	if err != nil {
		return fmt.Errorf("unable to persist network graph: %w", err)
	}
	return nil
}

func (p *Postgres) FetchGraph(ctx context.Context) (ldk.GraphBlob, error) {
	var blob []byte
	err := p.pool.QueryRow(ctx, `SELECT blob FROM network_graph WHERE id = 1`).Scan(&blob)
	if err == pgx.ErrNoRows {
		return nil, ErrGraphNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to fetch network graph: %w", err)
	}
	payload, err := unframeBlob(blob)
	if err != nil {
		return nil, fmt.Errorf("unable to unframe network graph blob: %w", err)
	}
	return payload, nil
}

func (p *Postgres) PersistScorer(ctx context.Context, blob ldk.ScorerBlob) error {
	framed, err := frameBlob(blob)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO scorer (id, blob) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET blob = excluded.blob`,
		framed)
	if err != nil {
		return fmt.Errorf("unable to persist scorer: %w", err)
	}
	return nil
}

func (p *Postgres) FetchScorer(ctx context.Context) (ldk.ScorerBlob, error) {
	var blob []byte
	err := p.pool.QueryRow(ctx, `SELECT blob FROM scorer WHERE id = 1`).Scan(&blob)
	if err == pgx.ErrNoRows {
		return nil, ErrScorerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to fetch scorer: %w", err)
	}
	payload, err := unframeBlob(blob)
	if err != nil {
		return nil, fmt.Errorf("unable to unframe scorer blob: %w", err)
	}
	return payload, nil
}

// outpointKey/outpointFromKey frame a funding outpoint as a fixed
// txid||vout byte key, following the tlv-framed-header shape spec
// section 9 describes for opaque blobs: a small typed header ahead of
// the protocol-engine's payload.
func outpointKey(o ldk.OutPoint) []byte {
	key := make([]byte, chainhash.HashSize+2)
	copy(key, o.Txid[:])
	key[chainhash.HashSize] = byte(o.Vout >> 8)
	key[chainhash.HashSize+1] = byte(o.Vout)
	return key
}

func outpointFromKey(key []byte) (ldk.OutPoint, error) {
	if len(key) != chainhash.HashSize+2 {
		return ldk.OutPoint{}, fmt.Errorf("malformed outpoint key of length %d", len(key))
	}
	var txid chainhash.Hash
	copy(txid[:], key[:chainhash.HashSize])
	vout := uint16(key[chainhash.HashSize])<<8 | uint16(key[chainhash.HashSize+1])
	return ldk.OutPoint{Txid: txid, Vout: vout}, nil
}
