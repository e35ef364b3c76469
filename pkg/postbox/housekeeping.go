package postbox

import (
	"sync"
	"time"

	"github.com/nodye/postbox/pkg/metrics"
)

// Housekeeper periodically submits a no-op transaction whose only job
// is to clear every table's memory cache, bounding the memory a
// long-running process accumulates from tables that are read far more
// often than they are cleared explicitly.
type Housekeeper struct {
	pb       *Postbox
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewHousekeeper constructs a Housekeeper for pb with the given
// clear-cache interval.
func NewHousekeeper(pb *Postbox, interval time.Duration) *Housekeeper {
	return &Housekeeper{pb: pb, interval: interval}
}

// Start begins the housekeeping loop. Calling Start twice without an
// intervening Stop is a no-op.
func (h *Housekeeper) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh != nil {
		return
	}
	h.stopCh = make(chan struct{})
	h.wg.Add(1)
	go h.run(h.stopCh)
}

// Stop ends the housekeeping loop and waits for it to exit.
func (h *Housekeeper) Stop() {
	h.mu.Lock()
	stopCh := h.stopCh
	h.stopCh = nil
	h.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	h.wg.Wait()
}

func (h *Housekeeper) run(stopCh chan struct{}) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-stopCh:
			return
		}
	}
}

func (h *Housekeeper) sweep() {
	timer := metrics.NewTimer()
	result := <-Transaction(h.pb, func(m *Modifier) (struct{}, error) {
		for _, table := range m.tables() {
			if err := table.ClearMemoryCache(); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if result.Err != nil {
		h.pb.logger.Warn().Err(result.Err).Msg("housekeeping sweep skipped: dirty state present")
		return
	}
	timer.ObserveDuration(metrics.TransactionDuration)
}
