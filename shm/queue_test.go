package shm

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record is the test element type: large enough to make wrap-around and
// relinearization easy to reason about, byte-copyable as spec.md requires.
type record struct {
	seq  uint64
	tag  [3]uint64
}

func mkrecord(seq uint64) record {
	return record{seq: seq, tag: [3]uint64{seq, seq + 1, seq + 2}}
}

func newTestQueue(t *testing.T, initialCapacity uint64) (*Segment, *Queue[record]) {
	t.Helper()

	name := "shmipc_test_" + t.Name()
	seg, err := Open(name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = seg.Unlink() })

	q, err := Attach[record](seg, initialCapacity)
	require.NoError(t, err)

	return seg, q
}

func TestAttachInitializesFreshSegmentToDefaultCapacity(t *testing.T) {
	_, q := newTestQueue(t, 0)

	assert.Equal(t, uint64(DefaultInitialCapacity), q.Capacity())
	assert.True(t, q.Empty())
}

func TestAttachRejectsNonPowerOfTwoCapacity(t *testing.T) {
	name := "shmipc_test_" + t.Name()
	seg, err := Open(name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = seg.Unlink() })

	_, err = Attach[record](seg, 3)
	assert.Error(t, err)
}

func TestPushPopRoundTripPreservesOrder(t *testing.T) {
	_, q := newTestQueue(t, 8)

	const n = 5
	for i := uint64(0); i < n; i++ {
		require.NoError(t, q.Push(mkrecord(i), false))
	}

	for i := uint64(0); i < n; i++ {
		var got record
		require.NoError(t, q.Pop(&got))
		assert.True(t, cmp.Equal(mkrecord(i), got, cmp.AllowUnexported(record{})))
	}

	assert.True(t, q.Empty())
}

func TestPopOnFreshQueueReturnsEmpty(t *testing.T) {
	_, q := newTestQueue(t, 0)

	var out record
	err := q.Pop(&out)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestPopOnDrainedQueueReturnsEmpty(t *testing.T) {
	_, q := newTestQueue(t, 4)

	require.NoError(t, q.Push(mkrecord(1), false))

	var out record
	require.NoError(t, q.Pop(&out))

	err := q.Pop(&out)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestPushWithoutExpandFailsWhenOneSlotReserved(t *testing.T) {
	_, q := newTestQueue(t, 4)

	// capacity 4 tolerates 3 live records before the reserved slot bites.
	require.NoError(t, q.Push(mkrecord(0), false))
	require.NoError(t, q.Push(mkrecord(1), false))
	require.NoError(t, q.Push(mkrecord(2), false))

	err := q.Push(mkrecord(3), false)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, uint64(4), q.Capacity())
}

func TestWrapWithoutResizeKeepsOrder(t *testing.T) {
	_, q := newTestQueue(t, 4)

	for round := 0; round < 3; round++ {
		require.NoError(t, q.Push(mkrecord(uint64(round*2)), false))
		require.NoError(t, q.Push(mkrecord(uint64(round*2+1)), false))

		var a, b record
		require.NoError(t, q.Pop(&a))
		require.NoError(t, q.Pop(&b))
		assert.Equal(t, uint64(round*2), a.seq)
		assert.Equal(t, uint64(round*2+1), b.seq)
	}
}

func TestForcedGrowthDoublesCapacityAndPreservesOrder(t *testing.T) {
	_, q := newTestQueue(t, 4)

	// Fill to the reserved-slot boundary, then force one more push through
	// the doubling protocol.
	require.NoError(t, q.Push(mkrecord(0), false))
	require.NoError(t, q.Push(mkrecord(1), false))
	require.NoError(t, q.Push(mkrecord(2), false))

	require.NoError(t, q.Push(mkrecord(3), true))
	assert.Equal(t, uint64(8), q.Capacity())

	for i := uint64(0); i < 4; i++ {
		var got record
		require.NoError(t, q.Pop(&got))
		assert.Equal(t, i, got.seq)
	}
}

func TestWrappedGrowthRelinearizesRing(t *testing.T) {
	_, q := newTestQueue(t, 4)

	// Advance head and tail together so the live range wraps across the
	// physical end of a 4-slot ring before triggering growth.
	require.NoError(t, q.Push(mkrecord(100), false))
	require.NoError(t, q.Push(mkrecord(101), false))

	var discard record
	require.NoError(t, q.Pop(&discard))
	require.NoError(t, q.Pop(&discard))

	require.NoError(t, q.Push(mkrecord(0), false))
	require.NoError(t, q.Push(mkrecord(1), false))
	require.NoError(t, q.Push(mkrecord(2), false))
	// head is now wrapped relative to tail; one more push forces growth.
	require.NoError(t, q.Push(mkrecord(3), true))

	assert.Equal(t, uint64(8), q.Capacity())

	for i := uint64(0); i < 4; i++ {
		var got record
		require.NoError(t, q.Pop(&got))
		assert.Equal(t, i, got.seq)
	}

	assert.True(t, q.Empty())
}

func TestReattachIsIdempotent(t *testing.T) {
	seg, q := newTestQueue(t, 8)

	require.NoError(t, q.Push(mkrecord(1), false))

	again, err := Attach[record](seg, 8)
	require.NoError(t, err)
	assert.Equal(t, q.Capacity(), again.Capacity())

	var out record
	require.NoError(t, again.Pop(&out))
	assert.Equal(t, uint64(1), out.seq)
}

// TestCrossProcessGrowthObservation simulates two cooperating processes with
// two independent Segment/Queue handles over the same shared-memory name,
// per the module's documented substitute for spawning real OS processes: a
// producer handle grows the ring while a consumer handle, opened separately,
// observes the new capacity on its next Pop.
func TestCrossProcessGrowthObservation(t *testing.T) {
	name := "shmipc_test_" + t.Name()

	producerSeg, err := Open(name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = producerSeg.Unlink() })

	producer, err := Attach[record](producerSeg, 4)
	require.NoError(t, err)

	consumerSeg, err := Open(name)
	require.NoError(t, err)
	defer consumerSeg.Close() //nolint:errcheck

	consumer, err := Attach[record](consumerSeg, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(4), consumer.Capacity())

	require.NoError(t, producer.Push(mkrecord(0), false))
	require.NoError(t, producer.Push(mkrecord(1), false))
	require.NoError(t, producer.Push(mkrecord(2), false))
	require.NoError(t, producer.Push(mkrecord(3), true))

	assert.Equal(t, uint64(8), producer.Capacity())

	for i := uint64(0); i < 4; i++ {
		var got record
		require.NoError(t, consumer.Pop(&got))
		assert.Equal(t, i, got.seq)
	}

	assert.Equal(t, uint64(8), consumer.Capacity())
}

func TestConcurrentSingleProducerSingleConsumer(t *testing.T) {
	name := "shmipc_test_" + t.Name()

	producerSeg, err := Open(name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = producerSeg.Unlink() })

	producer, err := Attach[record](producerSeg, 8)
	require.NoError(t, err)

	consumerSeg, err := Open(name)
	require.NoError(t, err)
	defer consumerSeg.Close() //nolint:errcheck

	consumer, err := Attach[record](consumerSeg, 8)
	require.NoError(t, err)

	const n = 20000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()

		for i := uint64(0); i < n; i++ {
			require.NoError(t, producer.Push(mkrecord(i), true))
		}
	}()

	go func() {
		defer wg.Done()

		for i := uint64(0); i < n; i++ {
			var got record
			for {
				err := consumer.Pop(&got)
				if err == nil {
					break
				}
				if !errors.Is(err, ErrQueueEmpty) {
					t.Errorf("unexpected pop error: %v", err)
					return
				}
			}
			if got.seq != i {
				t.Errorf("out of order: got %d want %d", got.seq, i)
				return
			}
		}
	}()

	wg.Wait()
}
