package discovery

import "sync"

// RefreshResult is delivered once per triggered refresh.
type RefreshResult struct {
	Index Index
	Err   error
}

// Refresher runs store refreshes in the background. Passes are
// serialized by the store; each trigger gets its own pass and
// its own one-shot result channel.
type Refresher struct {
	store *Store

	mu      sync.Mutex
	running int
}

func NewRefresher(store *Store) *Refresher {
	return &Refresher{store: store}
}

// Trigger schedules a background refresh and returns a channel
// that receives its result.
func (r *Refresher) Trigger() <-chan RefreshResult {
	ch := make(chan RefreshResult, 1)
	r.mu.Lock()
	r.running++
	r.mu.Unlock()

	go func() {
		index, err := r.store.Refresh()

		r.mu.Lock()
		r.running--
		r.mu.Unlock()

		ch <- RefreshResult{Index: index, Err: err}
	}()
	return ch
}

// Busy reports whether any refresh is running or pending.
func (r *Refresher) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running > 0
}
