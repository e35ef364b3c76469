package postbox

import (
	"sync"

	"github.com/nodye/postbox/pkg/valuebox"
)

// viewRegistry holds every view created through the Postbox's view
// constructors. A view stays registered for the Postbox's lifetime:
// it is not removed when its last subscriber unsubscribes, and those
// constructors discard the unregister func register returns. It is
// consulted once per transaction, from the single worker goroutine;
// register can be called from any goroutine, so it carries its own
// mutex.
type viewRegistry struct {
	mu    sync.Mutex
	views *Bag[replayable]
}

func newViewRegistry() *viewRegistry {
	return &viewRegistry{views: NewBag[replayable]()}
}

func (r *viewRegistry) register(v replayable) func() {
	r.mu.Lock()
	handle := r.views.Add(v)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.views.Remove(handle)
		r.mu.Unlock()
	}
}

// replayAll runs replay on every registered view and notifies the ones
// that changed. Called from the worker goroutine only, after every
// table's BeforeCommit has flushed for the transaction.
func (r *viewRegistry) replayAll(tx *valuebox.Transaction, log *operationLog) error {
	r.mu.Lock()
	views := r.views.Snapshot()
	r.mu.Unlock()

	for _, v := range views {
		changed, err := v.replay(tx, log)
		if err != nil {
			return err
		}
		if changed {
			v.notify()
		}
	}
	return nil
}
