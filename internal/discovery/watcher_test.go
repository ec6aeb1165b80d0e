package discovery

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesh-dev/sesh/internal/testjsonl"
)

func TestWatcherFiresAfterDebounce(t *testing.T) {
	root := t.TempDir()

	var mu sync.Mutex
	var fired [][]string
	w, err := NewWatcher(
		[]string{root}, 20*time.Millisecond,
		func(paths []string) {
			mu.Lock()
			fired = append(fired, paths)
			mu.Unlock()
		},
	)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	path := filepath.Join(root, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, fired[0], path)
}

func TestWatcherSkipsMissingRoot(t *testing.T) {
	w, err := NewWatcher(
		[]string{filepath.Join(t.TempDir(), "absent")},
		20*time.Millisecond,
		func([]string) {},
	)
	require.NoError(t, err)
	w.Start()
	w.Stop()
}

func TestWatcherStopIdempotent(t *testing.T) {
	w, err := NewWatcher(
		[]string{t.TempDir()}, 20*time.Millisecond, func([]string) {},
	)
	require.NoError(t, err)
	w.Start()
	w.Stop()
	w.Stop()
}

func TestRefresherTrigger(t *testing.T) {
	cfg := testConfig(t)
	seedCodex(t, cfg, "rollout-a.jsonl",
		testjsonl.CodexSessionMetaJSON(
			"cx-1", "/home/me/webapp", "", "2024-04-01T10:00:00Z",
		),
	)

	r := NewRefresher(newStore(t, cfg))
	first := r.Trigger()
	second := r.Trigger()

	for _, ch := range []<-chan RefreshResult{first, second} {
		select {
		case res := <-ch:
			require.NoError(t, res.Err)
			assert.Len(t, res.Index.Sessions, 1)
		case <-time.After(5 * time.Second):
			t.Fatal("refresh result not delivered")
		}
	}
	assert.False(t, r.Busy())
}
