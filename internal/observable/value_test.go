package observable_test

import (
	"sync"
	"testing"

	"github.com/jrsteele09/go-auth-client/internal/observable"
	"github.com/stretchr/testify/require"
)

func TestValue_SetNotifiesOnChange(t *testing.T) {
	v := observable.New("")

	var seen []string
	unsubscribe := v.Subscribe(func(s string) { seen = append(seen, s) })

	require.True(t, v.Set("a"))
	require.False(t, v.Set("a"))
	require.True(t, v.Set("b"))
	require.Equal(t, []string{"a", "b"}, seen)

	unsubscribe()
	unsubscribe()
	require.True(t, v.Set("c"))
	require.Equal(t, []string{"a", "b"}, seen)
	require.Equal(t, "c", v.Get())
}

func TestValue_UpdateCanDecline(t *testing.T) {
	v := observable.New(1)
	notified := 0
	v.Subscribe(func(int) { notified++ })

	changed := v.Update(func(current int) (int, bool) { return current + 1, false })
	require.False(t, changed)
	require.Equal(t, 1, v.Get())

	changed = v.Update(func(current int) (int, bool) { return current + 1, true })
	require.True(t, changed)
	require.Equal(t, 2, v.Get())
	require.Equal(t, 1, notified)
}

func TestValue_SubscriberMayReadValue(t *testing.T) {
	v := observable.New(0)
	var got int
	v.Subscribe(func(int) { got = v.Get() })
	v.Set(7)
	require.Equal(t, 7, got)
}

func TestValue_ConcurrentSet(t *testing.T) {
	v := observable.New(0)
	var mu sync.Mutex
	count := 0
	v.Subscribe(func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			v.Set(n)
		}(i)
	}
	wg.Wait()

	require.NotZero(t, v.Get())
	require.LessOrEqual(t, count, 50)
	require.Positive(t, count)
}
