package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearThenGetReturnsEmptyBag(t *testing.T) {
	s := NewStore()

	s.Set(7, "phone", "+14155550100")
	s.Do(7, func(bag *Bag) { bag.Step = "code" })

	s.Clear(7)

	bag := s.Get(7)
	assert.Empty(t, bag.Step)
	assert.Empty(t, bag.Fields)
	assert.False(t, s.InProgress(7))

	// Idempotent on absent users too.
	s.Clear(99)
	assert.Empty(t, s.Get(99).Fields)
}

func TestSameUserOperationsAreSerialized(t *testing.T) {
	s := NewStore()
	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Do(1, func(bag *Bag) {
					n, _ := bag.Int(perWorkerKey)
					// A second goroutine interleaving between read and
					// write here would lose increments.
					bag.Set(perWorkerKey, n+1)
				})
			}
		}()
	}
	wg.Wait()

	n, ok := s.Get(1).Int(perWorkerKey)
	require.True(t, ok)
	assert.Equal(t, workers*perWorker, n)
}

const perWorkerKey = "counter"

func TestDifferentUsersDoNotBlockEachOther(t *testing.T) {
	s := NewStore()

	blocked := make(chan struct{})
	release := make(chan struct{})

	go s.Do(1, func(bag *Bag) {
		close(blocked)
		<-release
	})
	<-blocked

	done := make(chan struct{})
	go func() {
		s.Set(2, "k", "v")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("operation for user 2 blocked behind user 1")
	}
	close(release)
}

func TestDoMutationsVisibleToNextDo(t *testing.T) {
	s := NewStore()

	s.Do(5, func(bag *Bag) {
		bag.Flow = "onboarding"
		bag.Step = "api_id"
		bag.Set("api_id", int64(123456))
	})

	s.Do(5, func(bag *Bag) {
		assert.Equal(t, "onboarding", bag.Flow)
		assert.Equal(t, "api_id", bag.Step)
		id, ok := bag.Int64("api_id")
		assert.True(t, ok)
		assert.Equal(t, int64(123456), id)
	})
}

func TestGetReturnsSnapshotCopy(t *testing.T) {
	s := NewStore()
	s.Set(3, "k", "v")

	snap := s.Get(3)
	snap.Fields["k"] = "mutated"

	assert.Equal(t, "v", s.Get(3).String("k"))
}

func TestSnapshotAccessorsUsableInline(t *testing.T) {
	s := NewStore()
	s.Set(8, "phone", "+14155550100")
	s.Set(8, "count", 3)

	assert.Equal(t, "+14155550100", s.Get(8).String("phone"))
	n, ok := s.Get(8).Int("count")
	require.True(t, ok)
	assert.Equal(t, 3, n)

	v, ok := s.Get(8).Value("phone")
	require.True(t, ok)
	assert.Equal(t, "+14155550100", v)
	assert.False(t, s.Get(8).Active())
}
