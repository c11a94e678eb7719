package state

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLockerSerializesSameKey(t *testing.T) {
	locker := NewKeyedLocker()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "sys-1:airTemp")
			assert.NoError(t, err)
			counter++
			unlock.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestKeyedLockerIndependentKeys(t *testing.T) {
	locker := NewKeyedLocker()
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "sys-1:airTemp")
	require.NoError(t, err)

	// a different key is not blocked by the held lock
	done := make(chan struct{})
	go func() {
		unlockB, err := locker.Lock(ctx, "sys-1:humidity")
		assert.NoError(t, err)
		unlockB.Unlock()
		close(done)
	}()
	<-done

	unlockA.Unlock()
}

func TestKeyedLockerReleasesIdleKeys(t *testing.T) {
	locker := NewKeyedLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "sys-1:pH")
	require.NoError(t, err)
	unlock.Unlock()

	k := locker.(*keyed)
	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks, "released keys do not accumulate")
}

func TestKeyedLockerReacquire(t *testing.T) {
	locker := NewKeyedLocker()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		unlock, err := locker.Lock(ctx, "sys-1:co2Level")
		require.NoError(t, err)
		unlock.Unlock()
	}
	require.NoError(t, locker.Close())
}
