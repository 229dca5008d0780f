package database

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/kuutamolabs/kld/internal/ldk"
)

func TestIsTransientPersistErrorClassifiesConnectionExceptions(t *testing.T) {
	cases := []string{"08000", "08006", "08003", "57P01", "57P03"}
	for _, code := range cases {
		err := &pgconn.PgError{Code: code}
		if !isTransientPersistError(err) {
			t.Errorf("code %s: expected transient", code)
		}
	}
}

func TestIsTransientPersistErrorClassifiesConstraintViolationsAsPermanent(t *testing.T) {
	cases := []string{"23505", "22001", "42601"}
	for _, code := range cases {
		err := &pgconn.PgError{Code: code}
		if isTransientPersistError(err) {
			t.Errorf("code %s: expected permanent", code)
		}
	}
}

func TestIsTransientPersistErrorClassifiesNetworkErrorsAsTransient(t *testing.T) {
	err := &net.DNSError{IsTimeout: true}
	if !isTransientPersistError(err) {
		t.Error("expected a net.Error to be classified transient")
	}
}

func TestIsTransientPersistErrorClassifiesUnknownErrorsAsPermanent(t *testing.T) {
	if isTransientPersistError(errors.New("some unrelated failure")) {
		t.Error("expected an unrecognised error to be classified permanent")
	}
}

func TestRetryPersistWriteReturnsCompletedOnFirstSuccess(t *testing.T) {
	var syncing atomic.Bool
	calls := 0
	result := retryPersistWrite(context.Background(), clock.NewDefaultClock(),
		time.Millisecond, 10*time.Millisecond, time.Second, &syncing,
		func(context.Context) error {
			calls++
			return nil
		})

	if result != ldk.Completed {
		t.Errorf("got %v, want Completed", result)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
	if syncing.Load() {
		t.Error("expected syncing to be false after a clean success")
	}
}

func TestRetryPersistWriteReturnsPermanentFailureWithoutRetrying(t *testing.T) {
	var syncing atomic.Bool
	calls := 0
	result := retryPersistWrite(context.Background(), clock.NewDefaultClock(),
		time.Millisecond, 10*time.Millisecond, time.Second, &syncing,
		func(context.Context) error {
			calls++
			return &pgconn.PgError{Code: "23505"}
		})

	if result != ldk.PermanentFailure {
		t.Errorf("got %v, want PermanentFailure", result)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want exactly 1 (no retry on a non-transient error)", calls)
	}
}

func TestRetryPersistWriteRetriesTransientErrorsThenSucceeds(t *testing.T) {
	var syncing atomic.Bool
	calls := 0
	result := retryPersistWrite(context.Background(), clock.NewDefaultClock(),
		time.Millisecond, 2*time.Millisecond, time.Second, &syncing,
		func(context.Context) error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: "08006"}
			}
			return nil
		})

	if result != ldk.Completed {
		t.Errorf("got %v, want Completed", result)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestRetryPersistWriteGivesUpWithInProgressPastTheWindow(t *testing.T) {
	var syncing atomic.Bool
	calls := 0
	result := retryPersistWrite(context.Background(), clock.NewDefaultClock(),
		time.Millisecond, time.Millisecond, 5*time.Millisecond, &syncing,
		func(context.Context) error {
			calls++
			return &pgconn.PgError{Code: "08006"}
		})

	if result != ldk.InProgress {
		t.Errorf("got %v, want InProgress", result)
	}
	if calls < 2 {
		t.Errorf("got %d calls, want at least 2 retries before giving up", calls)
	}
	if !syncing.Load() {
		t.Error("expected syncing to still be true after giving up mid-retry")
	}
}

func TestRetryPersistWriteStopsOnContextCancellation(t *testing.T) {
	var syncing atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := retryPersistWrite(ctx, clock.NewDefaultClock(),
		time.Second, time.Second, time.Minute, &syncing,
		func(context.Context) error {
			return &pgconn.PgError{Code: "08006"}
		})

	if result != ldk.InProgress {
		t.Errorf("got %v, want InProgress", result)
	}
}
