package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/engine"
	"github.com/roach88/treestore/internal/state"
)

func TestDeterministicClock_NextAndReset(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Current())

	assert.Equal(t, int64(1), clock.Next())
	assert.Equal(t, int64(2), clock.Next())
	assert.Equal(t, int64(2), clock.Current())

	clock.Reset()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const goroutines = 50
	const calls = 100

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				clock.Next()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*calls), clock.Current())
}

func TestDeterministicClock_StampsStoreRecords(t *testing.T) {
	clock := NewDeterministicClock()
	var seqs []int64

	run := func() {
		s, err := engine.NewConfigurator().Create(state.Null{},
			engine.WithLogger(QuietLogger()),
			engine.WithClock(clock),
			engine.WithRecorder(func(r engine.Record) { seqs = append(seqs, r.Seq) }),
		)
		require.NoError(t, err)
		defer s.Close()
		require.NoError(t, s.Dispatch(action.New("a")))
		require.NoError(t, s.Dispatch(action.New("b")))
	}

	run()
	clock.Reset()
	run()

	assert.Equal(t, []int64{1, 2, 1, 2}, seqs)
}
