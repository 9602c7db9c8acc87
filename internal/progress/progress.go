// Package progress prints a one-line live status of a running load test.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"envload/internal/stats"
)

// Source provides the statistics shown on the progress line.
type Source interface {
	Snapshot() stats.Snapshot
}

type Progress struct {
	source   Source
	users    func() int
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopped  atomic.Bool
	quiet    bool
	output   io.Writer
	mu       sync.Mutex
}

func NewProgress(s Source, quiet bool) *Progress {
	return &Progress{
		source:   s,
		quiet:    quiet,
		interval: time.Second,
		output:   os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// SetUsers adds the live population returned by fn to the progress line.
func (p *Progress) SetUsers(fn func() int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = fn
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	s := p.source.Snapshot()
	elapsed := s.Elapsed.Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.output, "\033[K[%02d:%02d] Requests: %d | RPS: %.1f | Errors: %d (%.1f%%)",
		mins, secs, s.Total.Requests, s.CurrentRPS, s.Total.Failures, s.Total.FailureRate()*100)
	if p.users != nil {
		fmt.Fprintf(p.output, " | Users: %d", p.users())
	}
	fmt.Fprint(p.output, "\r")
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
