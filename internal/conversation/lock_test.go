package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exerciseLocker(t *testing.T, locker Locker) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			unlock, err := locker.Lock(ctx, "t1:234")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxSeen)
				if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxSeen)
	}
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	exerciseLocker(t, NewKeyedMutex())
}

func TestKeyedMutexTimesOutAndCleansUp(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "a"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	other, err := k.Lock(context.Background(), "b")
	if err != nil {
		t.Fatalf("independent key should lock: %v", err)
	}
	other()
	unlock()
	unlock()
	if len(k.locks) != 0 {
		t.Fatalf("expected lock table to be empty, got %d", len(k.locks))
	}
}

func TestRedisLockerSerialisesSameKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := NewRedisLocker(client, time.Second)
	locker.poll = time.Millisecond
	exerciseLocker(t, locker)
}

func TestRedisLockerReleaseOnlyOwnLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := NewRedisLocker(client, time.Second)

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	mr.Set("conversation:lock:k", "someone-else")
	unlock()
	if got, _ := mr.Get("conversation:lock:k"); got != "someone-else" {
		t.Fatalf("release must not delete another holder's lease, got %q", got)
	}

	mr.Del("conversation:lock:k")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	again, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}
