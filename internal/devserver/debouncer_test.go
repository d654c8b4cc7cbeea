package devserver

import (
	"sort"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncer_coalesces(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var (
			mu    sync.Mutex
			calls [][]string
		)

		d := NewDebouncer(100*time.Millisecond, func(paths []string) {
			mu.Lock()
			defer mu.Unlock()
			sort.Strings(paths)
			calls = append(calls, paths)
		})

		d.Add("bundle.yaml")
		time.Sleep(50 * time.Millisecond)
		d.Add("bundle.yaml")
		d.Add("src/index.html")

		// the second Add restarted the window
		time.Sleep(60 * time.Millisecond)
		synctest.Wait()
		mu.Lock()
		require.Empty(t, calls)
		mu.Unlock()

		time.Sleep(100 * time.Millisecond)
		synctest.Wait()

		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, [][]string{{"bundle.yaml", "src/index.html"}}, calls)
	})
}

func TestDebouncer_stop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		called := false
		d := NewDebouncer(100*time.Millisecond, func([]string) { called = true })

		d.Add("bundle.yaml")
		d.Stop()

		time.Sleep(200 * time.Millisecond)
		synctest.Wait()
		require.False(t, called)
	})
}
