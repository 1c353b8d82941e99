package listener

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	key   string
	value int
}

func collect(ch chan delivery) KeyCallback[int] {
	return func(key string, value int) {
		ch <- delivery{key: key, value: value}
	}
}

func expectNone(t *testing.T, ch chan delivery) {
	t.Helper()
	select {
	case d := <-ch:
		t.Fatalf("unexpected delivery %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectOne(t *testing.T, ch chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(time.Second):
		t.Fatal("expected a delivery")
	}
	return delivery{}
}

func TestKeyListenersDebounce(t *testing.T) {
	mock := clock.NewMock()
	l := NewKeyListeners[int](mock, DefaultDebounce)
	ch := make(chan delivery, 10)
	l.Add("k", collect(ch))

	for i := 1; i <= 5; i++ {
		require.Equal(t, 1, l.Trigger("k", i))
		mock.Add(10 * time.Millisecond)
	}
	expectNone(t, ch)

	mock.Add(DefaultDebounce)
	d := expectOne(t, ch)
	require.Equal(t, delivery{key: "k", value: 5}, d, "burst delivers only the last value")
	expectNone(t, ch)

	require.Equal(t, 0, l.Trigger("other", 1))
}

func TestKeyListenersRemoveCancelsPending(t *testing.T) {
	mock := clock.NewMock()
	l := NewKeyListeners[int](mock, DefaultDebounce)
	ch := make(chan delivery, 10)
	id := l.Add("k", collect(ch))

	l.Trigger("k", 1)
	require.True(t, l.Remove(id))
	require.False(t, l.Remove(id))

	mock.Add(time.Second)
	expectNone(t, ch)
	require.Equal(t, 0, l.Trigger("k", 2))
	require.Equal(t, 0, l.Len())
}

func TestKeyListenersStableHandles(t *testing.T) {
	l := NewKeyListeners[int](clock.NewMock(), 0)
	var calls atomic.Int32

	a := l.Add("k", func(string, int) { calls.Add(1) })
	b := l.Add("k", func(string, int) { calls.Add(1) })
	require.True(t, l.Remove(a))
	c := l.Add("k", func(string, int) { calls.Add(1) })

	require.NotEqual(t, a, c, "handles are never reused")
	require.NotEqual(t, b, c)
	require.Equal(t, map[string]int{"k": 2}, l.Keys())

	// zero window dispatches synchronously
	require.Equal(t, 2, l.Trigger("k", 1))
	require.Equal(t, int32(2), calls.Load())
}

func TestIDListeners(t *testing.T) {
	l := NewIDListeners[string]()
	var got []string

	require.True(t, l.Register("req-1", func(v string) { got = append(got, v) }))
	require.False(t, l.Register("req-1", func(string) {}), "already registered")
	require.True(t, l.Has("req-1"))

	require.True(t, l.Fire("req-1", "first"))
	require.False(t, l.Fire("req-1", "second"), "one-shot")
	require.Equal(t, []string{"first"}, got)

	require.True(t, l.Register("req-2", func(v string) { got = append(got, v) }))
	require.True(t, l.Cancel("req-2"))
	require.False(t, l.Fire("req-2", "late"))
	require.Equal(t, 0, l.Len())
}

func TestBus(t *testing.T) {
	b := NewBus[int]()
	var order []string

	h1 := b.On("put", func(v int) { order = append(order, "a") })
	b.On("put", func(v int) { order = append(order, "b") })
	b.On("peer", func(v int) { order = append(order, "peer") })

	require.Equal(t, 2, b.Emit("put", 1))
	require.Equal(t, []string{"a", "b"}, order)

	require.True(t, b.Off("put", h1))
	require.False(t, b.Off("put", h1))
	require.False(t, b.Off("missing", h1))

	order = nil
	require.Equal(t, 1, b.Emit("put", 2))
	require.Equal(t, []string{"b"}, order)
	require.Equal(t, 0, b.Emit("nothing", 3))
}
