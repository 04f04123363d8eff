package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/janisto/account-settings/internal/testutil"
)

func setupLocker(t *testing.T, ttl time.Duration) *Locker {
	t.Helper()
	testutil.Require(t, testutil.Redis)

	client, err := Connect(context.Background(), "redis://"+testutil.Redis.Host+"/15")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return New(client, "test:"+t.Name()+":", ttl)
}

func TestTryLockIsExclusive(t *testing.T) {
	l := setupLocker(t, time.Minute)
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("expected first lock, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := l.TryLock(ctx, "user-1"); err != nil || ok {
		t.Fatalf("expected second lock to be refused, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, "user-2"); !ok {
		t.Fatal("expected other key to lock independently")
	}

	unlock()
	if _, ok, _ := l.TryLock(ctx, "user-1"); !ok {
		t.Fatal("expected lock after release")
	}
}

func TestUnlockLeavesForeignLockAlone(t *testing.T) {
	l := setupLocker(t, 200*time.Millisecond)
	ctx := context.Background()

	unlock, ok, _ := l.TryLock(ctx, "user-1")
	if !ok {
		t.Fatal("expected lock")
	}
	time.Sleep(300 * time.Millisecond)

	if _, ok, _ := l.TryLock(ctx, "user-1"); !ok {
		t.Fatal("expected expired lock to be taken over")
	}
	unlock()
	if _, ok, _ := l.TryLock(ctx, "user-1"); ok {
		t.Fatal("stale unlock must not release the new holder's lock")
	}
}

func TestConnectRejectsBadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "not a url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}
