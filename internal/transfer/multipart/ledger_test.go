package multipart

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

func part(n int) planner.Part {
	return planner.Part{Number: n, Offset: int64(n-1) * 10, Length: 10}
}

func TestLedger_AllPartsSucceed(t *testing.T) {
	l := NewLedger()
	for i := 1; i <= 3; i++ {
		require.True(t, l.Begin())
	}
	assert.Equal(t, Continue, l.Seal(3))

	for _, n := range []int{3, 1} {
		ack := l.Report(Success(part(n), "etag"))
		assert.True(t, ack.Accepted)
		assert.Equal(t, Continue, l.Settle(nil))
	}

	assert.True(t, l.Report(Success(part(2), "etag")).Accepted)
	assert.Equal(t, Finish, l.Settle(nil))
	assert.False(t, l.Begin(), "no new work once finishing")
	assert.Equal(t, Continue, l.Stop(errors.New("late cancel")), "stop is a no-op while finishing")
	assert.False(t, l.Stopped())

	parts := l.Completed()
	require.Len(t, parts, 3)
	for i, p := range parts {
		assert.Equal(t, i+1, p.Number)
	}
	assert.Equal(t, int64(30), l.CompletedBytes())
}

func TestLedger_FirstFailureWins(t *testing.T) {
	l := NewLedger()
	for i := 1; i <= 5; i++ {
		require.True(t, l.Begin())
	}
	l.Seal(5)

	for _, n := range []int{1, 2, 4} {
		require.True(t, l.Report(Success(part(n), "etag")).Accepted)
		require.Equal(t, Continue, l.Settle(nil))
	}

	first := errors.New("part 3 failed")
	ack := l.Report(Failure(part(3), first))
	assert.True(t, ack.Cause)
	assert.Equal(t, Continue, l.Settle(nil), "part 5 still outstanding")

	ack = l.Report(Failure(part(5), errors.New("second failure")))
	assert.False(t, ack.Cause)
	assert.Equal(t, Cleanup, l.Settle(nil))

	assert.Same(t, first, l.Cause())
	assert.Equal(t, int64(30), l.CompletedBytes(), "successful parts are counted once")
}

func TestLedger_SuccessAfterStopDiscarded(t *testing.T) {
	l := NewLedger()
	require.True(t, l.Begin())
	l.Seal(1)

	assert.Equal(t, Continue, l.Stop(errors.New("canceled")))
	assert.False(t, l.Report(Success(part(1), "etag")).Accepted)
	assert.Equal(t, Cleanup, l.Settle(nil))
	assert.Empty(t, l.Completed())
}

func TestLedger_StopWithNothingOutstanding(t *testing.T) {
	l := NewLedger()
	assert.Equal(t, Cleanup, l.Stop(errors.New("canceled")))
	assert.False(t, l.Begin())
	assert.Equal(t, Continue, l.Seal(3), "cleanup already decided")
	assert.Equal(t, Continue, l.Stop(errors.New("again")))
}

func TestLedger_ControlStepFailure(t *testing.T) {
	l := NewLedger()
	require.True(t, l.Begin())

	cause := errors.New("initiate failed")
	assert.Equal(t, Cleanup, l.Settle(cause))
	assert.Same(t, cause, l.Cause())
}

func TestLedger_FinishFailedHandsOverToCleanup(t *testing.T) {
	l := NewLedger()
	assert.Equal(t, Continue, l.FinishFailed(errors.New("not finishing")))

	require.True(t, l.Begin())
	l.Report(Success(part(1), "etag"))
	assert.Equal(t, Continue, l.Settle(nil))
	assert.Equal(t, Finish, l.Seal(1))

	cause := errors.New("complete failed")
	assert.Equal(t, Cleanup, l.FinishFailed(cause))
	assert.Equal(t, Continue, l.FinishFailed(cause), "cleanup decided once")
	assert.True(t, l.Stopped())
	assert.Same(t, cause, l.Cause())
}

func TestLedger_RestoredPartsFinishOnSeal(t *testing.T) {
	l := NewLedger()
	l.Restore([]transfertypes.CompletedPart{{Number: 1, Size: 10}, {Number: 2, Size: 10}})
	assert.True(t, l.Has(1))
	assert.False(t, l.Has(3))
	assert.Equal(t, Finish, l.Seal(2))
}

func TestLedger_DuplicateReportIgnored(t *testing.T) {
	l := NewLedger()
	require.True(t, l.Begin())
	require.True(t, l.Begin())
	assert.True(t, l.Report(Success(part(1), "a")).Accepted)
	assert.False(t, l.Report(Success(part(1), "b")).Accepted)
	assert.Equal(t, "a", l.Completed()[0].Token)
}

func TestLedger_ConcurrentReportsDecideOnce(t *testing.T) {
	for round := 0; round < 50; round++ {
		const parts = 32
		l := NewLedger()
		for i := 1; i <= parts; i++ {
			require.True(t, l.Begin())
		}
		l.Seal(parts)

		failing := 0
		if round%2 == 1 {
			failing = rand.Intn(parts) + 1
		}

		var finishes, cleanups atomic.Int32
		var wg sync.WaitGroup
		for _, n := range rand.Perm(parts) {
			n := n + 1
			wg.Add(1)
			go func() {
				defer wg.Done()
				r := Success(part(n), "etag")
				if n == failing {
					r = Failure(part(n), errors.New("boom"))
				}
				l.Report(r)
				switch l.Settle(nil) {
				case Finish:
					finishes.Add(1)
				case Cleanup:
					cleanups.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), finishes.Load()+cleanups.Load(), "exactly one terminal decision")
		if failing > 0 {
			assert.Equal(t, int32(1), cleanups.Load())
		} else {
			assert.Equal(t, int32(1), finishes.Load())
		}
	}
}
