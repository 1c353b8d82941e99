package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSeen(t *testing.T) {
	d := New(100, time.Minute)

	require.False(t, d.Seen("put|abc"))
	require.True(t, d.Seen("put|abc"))
	require.False(t, d.Seen("get|abc"), "type is part of the key")
	require.Equal(t, 2, d.Len())

	d.Forget("put|abc")
	require.False(t, d.Seen("put|abc"))
}

func TestCountBound(t *testing.T) {
	d := New(10, time.Minute)
	for i := 0; i < 25; i++ {
		d.Seen(fmt.Sprintf("k%d", i))
	}
	require.Equal(t, 10, d.Len())
	require.False(t, d.Seen("k0"), "oldest keys are evicted")
	require.True(t, d.Seen("k24"))
}

func TestAgeBound(t *testing.T) {
	d := New(10, 20*time.Millisecond)
	require.False(t, d.Seen("k"))
	require.Eventually(t, func() bool { return d.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.False(t, d.Seen("k"), "expired keys are accepted again")
}

func TestDefaults(t *testing.T) {
	d := New(0, 0)
	require.NotNil(t, d)
	require.False(t, d.Seen("x"))
}
