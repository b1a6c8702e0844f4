package fdsu

import (
	"sync"
	"time"
)

// pacer enforces a minimum interval between successive host->gatherer
// frames. The gatherer core can be
// overrun by a tight host-side send loop, hence the wait.
type pacer struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{interval: interval}
}

// wait blocks until interval has elapsed since the previous wait call.
func (p *pacer) wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last.IsZero() {
		p.last = time.Now()
		return
	}
	if remaining := p.interval - time.Since(p.last); remaining > 0 {
		time.Sleep(remaining)
	}
	p.last = time.Now()
}
