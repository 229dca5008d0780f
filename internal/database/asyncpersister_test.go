package database

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/kuutamolabs/kld/internal/ldk"
)

type stubStore struct {
	Store
	persistNewChannelCalls int
	updatePersistedCalls   int
	lastOutpoint           ldk.OutPoint
	lastUpdateID           uint64
	result                 ldk.UpdateResult
}

func (s *stubStore) PersistNewChannel(ctx context.Context, outpoint ldk.OutPoint, monitor ldk.MonitorBlob, updateID uint64) ldk.UpdateResult {
	s.persistNewChannelCalls++
	s.lastOutpoint = outpoint
	s.lastUpdateID = updateID
	return s.result
}

func (s *stubStore) UpdatePersistedChannel(ctx context.Context, outpoint ldk.OutPoint, updateID uint64, update ldk.MonitorBlob) ldk.UpdateResult {
	s.updatePersistedCalls++
	s.lastOutpoint = outpoint
	s.lastUpdateID = updateID
	return s.result
}

func testOutPoint() ldk.OutPoint {
	hash, _ := chainhash.NewHashFromStr("b7e16430d86be1ae349913fe2c30a254b67b1d27bc02bb7db64a9cca8db4ebb")
	return ldk.OutPoint{Txid: *hash, Vout: 1}
}

func TestAsyncPersisterPersistNewChannelDelegatesToStore(t *testing.T) {
	stub := &stubStore{result: ldk.UpdateResult(0)}
	a := AsyncPersister{Store: stub, Ctx: context.Background()}

	op := testOutPoint()
	a.PersistNewChannel(op, ldk.MonitorBlob{}, 7)

	if stub.persistNewChannelCalls != 1 {
		t.Fatalf("got %d calls, want 1", stub.persistNewChannelCalls)
	}
	if stub.lastOutpoint != op {
		t.Errorf("got outpoint %+v, want %+v", stub.lastOutpoint, op)
	}
	if stub.lastUpdateID != 7 {
		t.Errorf("got update id %d, want 7", stub.lastUpdateID)
	}
}

func TestAsyncPersisterUpdatePersistedChannelDelegatesToStore(t *testing.T) {
	stub := &stubStore{result: ldk.UpdateResult(0)}
	a := AsyncPersister{Store: stub, Ctx: context.Background()}

	op := testOutPoint()
	a.UpdatePersistedChannel(op, 9, ldk.MonitorBlob{})

	if stub.updatePersistedCalls != 1 {
		t.Fatalf("got %d calls, want 1", stub.updatePersistedCalls)
	}
	if stub.lastUpdateID != 9 {
		t.Errorf("got update id %d, want 9", stub.lastUpdateID)
	}
}
