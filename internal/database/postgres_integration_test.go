package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/kuutamolabs/kld/internal/config"
	"github.com/kuutamolabs/kld/internal/ldk"
)

// newTestPostgres spins up a throwaway postgres container via dockertest,
// the way the teacher's own CI brings up disposable backing services for
// integration coverage, and returns a *Postgres pointed at it plus a
// cleanup func.
func newTestPostgres(t *testing.T) (*Postgres, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping dockertest-backed postgres integration test in -short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable, skipping: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker daemon unreachable, skipping: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=kld",
			"POSTGRES_USER=kld",
			"POSTGRES_DB=kld",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("unable to start postgres container: %v", err)
	}
	cleanup := func() {
		_ = pool.Purge(resource)
	}

	cfg := config.Database{
		Host: "localhost",
		Port: mustAtoi(resource.GetPort("5432/tcp")),
		User: "kld",
		Name: "kld",
	}
	dsn := fmt.Sprintf("postgres://kld:kld@%s:%d/%s?sslmode=disable", cfg.Host, cfg.Port, cfg.Name)

	var store *Postgres
	pool.MaxWait = 60 * time.Second
	if err := pool.Retry(func() error {
		p, err := pgxpool.Connect(context.Background(), dsn)
		if err != nil {
			return err
		}
		p.Close()

		if err := runMigrations(dsn); err != nil {
			return err
		}
		connected, err := pgxpool.Connect(context.Background(), dsn)
		if err != nil {
			return err
		}
		store = &Postgres{pool: connected, clk: clock.NewDefaultClock()}
		return nil
	}); err != nil {
		cleanup()
		t.Fatalf("unable to bring up postgres: %v", err)
	}

	return store, func() {
		store.Close()
		cleanup()
	}
}

func mustAtoi(s string) int {
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}

func TestPostgresIsFirstStartAndPersistKeys(t *testing.T) {
	store, cleanup := newTestPostgres(t)
	defer cleanup()
	ctx := context.Background()

	first, err := store.IsFirstStart(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Error("expected a fresh database to report IsFirstStart true")
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var privBytes [32]byte
	copy(privBytes[:], priv.Serialize())

	if err := store.PersistKeys(ctx, priv.PubKey(), privBytes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err = store.IsFirstStart(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first {
		t.Error("expected IsFirstStart to be false once keys are persisted")
	}

	gotPub, gotPriv, err := store.FetchKeys(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotPub.IsEqual(priv.PubKey()) {
		t.Error("fetched public key does not match the persisted one")
	}
	if gotPriv != privBytes {
		t.Error("fetched private key bytes do not match the persisted ones")
	}
}

func TestPostgresPeerLifecycle(t *testing.T) {
	store, cleanup := newTestPostgres(t)
	defer cleanup()
	ctx := context.Background()

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id := ldk.NodeIDFromPubKey(priv.PubKey())

	if err := store.PersistPeer(ctx, Peer{NodeID: id, Address: "127.0.0.1:9735"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.FetchPeer(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Address != "127.0.0.1:9735" {
		t.Errorf("got address %q, want %q", got.Address, "127.0.0.1:9735")
	}

	if err := store.DeletePeer(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.FetchPeer(ctx, id); err != ErrPeerNotFound {
		t.Errorf("got err %v, want ErrPeerNotFound", err)
	}
}

func TestPostgresChannelMonitorUpdateOrdering(t *testing.T) {
	store, cleanup := newTestPostgres(t)
	defer cleanup()
	ctx := context.Background()

	hash, err := chainhash.NewHashFromStr("b7e16430d86be1ae349913fe2c30a254b67b1d27bc02bb7db64a9cca8db4ebb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outpoint := ldk.OutPoint{Txid: *hash, Vout: 0}

	result := store.PersistNewChannel(ctx, outpoint, ldk.MonitorBlob("snapshot"), 0)
	if result != ldk.Completed {
		t.Fatalf("got %v, want Completed", result)
	}

	for id := uint64(1); id <= 3; id++ {
		result := store.UpdatePersistedChannel(ctx, outpoint, id, ldk.MonitorBlob(fmt.Sprintf("update-%d", id)))
		if result != ldk.Completed {
			t.Fatalf("update %d: got %v, want Completed", id, result)
		}
	}
}
