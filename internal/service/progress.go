package service

import (
	"math"
	"sync"
	"time"

	"github.com/datawise/datawise/internal/protocol"
)

// progressReporter turns byte counts into Progress events. Percentages never
// go backwards and repeated percentages are not re-published.
type progressReporter struct {
	mu      sync.Mutex
	start   time.Time
	last    int
	publish func(protocol.Progress)
}

func newProgressReporter(publish func(protocol.Progress)) *progressReporter {
	return &progressReporter{start: time.Now(), last: -1, publish: publish}
}

func (p *progressReporter) report(done, total uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if done > total {
		done = total
	}
	pct := 100
	if total > 0 {
		pct = int(done * 100 / total)
	}
	if pct <= p.last {
		return
	}
	p.last = pct

	p.publish(protocol.Progress{
		Pct:            uint8(pct),
		BytesProcessed: done,
		TotalBytes:     total,
		EtaSeconds:     p.eta(done, total),
	})
}

func (p *progressReporter) eta(done, total uint64) *uint32 {
	if done >= total {
		zero := uint32(0)
		return &zero
	}
	if done == 0 {
		return nil
	}
	elapsed := time.Since(p.start).Seconds()
	remaining := elapsed * float64(total-done) / float64(done)
	secs := uint32(math.Min(math.Ceil(remaining), math.MaxUint32))
	return &secs
}
