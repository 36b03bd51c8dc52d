package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	cancels atomic.Int32
}

func (h *fakeHandle) Cancel() { h.cancels.Add(1) }

func newTestRegistry() *Registry {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_RegisterRejectsDuplicate(t *testing.T) {
	r := newTestRegistry()
	first, second := &fakeHandle{}, &fakeHandle{}

	require.True(t, r.Register("b", first))
	assert.False(t, r.Register("b", second))

	assert.Equal(t, 1, r.Len())
	r.Cancel("b")
	assert.Equal(t, int32(1), first.cancels.Load())
	assert.Equal(t, int32(0), second.cancels.Load())
}

func TestRegistry_ConcurrentRegisterSameID(t *testing.T) {
	r := newTestRegistry()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Register("same", &fakeHandle{}) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, []string{"same"}, r.List())
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	require.True(t, r.Register("a", &fakeHandle{}))

	r.Unregister("a")
	r.Unregister("a")
	r.Unregister("never-registered")

	assert.False(t, r.Contains("a"))
	assert.Empty(t, r.List())
}

func TestRegistry_CancelKeepsEntry(t *testing.T) {
	r := newTestRegistry()
	h := &fakeHandle{}
	require.True(t, r.Register("a", h))

	assert.True(t, r.Cancel("a"))
	assert.False(t, r.Cancel("missing"))

	assert.Equal(t, int32(1), h.cancels.Load())
	assert.True(t, r.Contains("a"), "cancelled job stays visible until terminal completion")
}

func TestRegistry_CancelAll(t *testing.T) {
	for _, n := range []int{0, 1, 50} {
		t.Run(fmt.Sprintf("%d jobs", n), func(t *testing.T) {
			r := newTestRegistry()
			handles := make([]*fakeHandle, n)
			for i := range handles {
				handles[i] = &fakeHandle{}
				require.True(t, r.Register(fmt.Sprintf("job-%d", i), handles[i]))
			}

			assert.Equal(t, n, r.CancelAll())
			for _, h := range handles {
				assert.Equal(t, int32(1), h.cancels.Load())
			}
			assert.Equal(t, n, r.Len())
		})
	}
}

func TestRegistry_Swap(t *testing.T) {
	r := newTestRegistry()
	placeholder, real, other := &fakeHandle{}, &fakeHandle{}, &fakeHandle{}

	assert.False(t, r.Swap("a", placeholder, real), "swap on absent id must not insert")
	assert.False(t, r.Contains("a"))

	require.True(t, r.Register("a", placeholder))
	assert.False(t, r.Swap("a", other, real))
	assert.True(t, r.Swap("a", placeholder, real))

	r.Cancel("a")
	assert.Equal(t, int32(1), real.cancels.Load())
	assert.Equal(t, int32(0), placeholder.cancels.Load())
}

func TestRegistry_MarkFailed(t *testing.T) {
	r := newTestRegistry()
	failure := errors.New("connection reset")

	assert.False(t, r.MarkFailed("a", failure))

	require.True(t, r.Register("a", &fakeHandle{}))
	assert.NoError(t, r.Failure("a"))
	assert.True(t, r.MarkFailed("a", failure))

	assert.Equal(t, failure, r.Failure("a"))
	assert.True(t, r.Contains("a"), "failure does not remove the entry")

	r.Unregister("a")
	assert.NoError(t, r.Failure("a"))
}

func TestRegistry_ListIsSorted(t *testing.T) {
	r := newTestRegistry()
	for _, id := range []string{"c", "a", "b"} {
		require.True(t, r.Register(id, &fakeHandle{}))
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.List())
}
