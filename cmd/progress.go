package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/khanhnv2901/cspgen/internal/resource"
)

// progressPrinter renders a single self-overwriting status line while files
// are parsed.
type progressPrinter struct {
	out      io.Writer
	name     string
	mu       sync.Mutex
	total    int
	ok       int
	fail     int
	refs     int
	started  bool
	updates  chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func newProgressPrinter(out io.Writer, total int, name string) *progressPrinter {
	if total <= 0 {
		total = 1
	}
	return &progressPrinter{
		out:     out,
		total:   total,
		name:    name,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	go p.loop()
}

// SetTotal updates the expected file count once enumeration is done.
func (p *progressPrinter) SetTotal(total int) {
	p.mu.Lock()
	if total > 0 {
		p.total = total
	}
	p.mu.Unlock()
	p.notify()
}

// Record accounts for one processed file.
func (p *progressPrinter) Record(result resource.FileResult) {
	p.mu.Lock()
	if result.Err == nil {
		p.ok++
	} else {
		p.fail++
	}
	p.refs += result.References
	p.mu.Unlock()
	p.notify()
}

func (p *progressPrinter) notify() {
	select {
	case p.updates <- struct{}{}:
	default:
	}
}

func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		started := p.started
		p.mu.Unlock()
		if started {
			<-p.stopped
		}
		fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", 80))
		p.print()
		fmt.Fprintln(p.out)
	})
}

func (p *progressPrinter) loop() {
	defer close(p.stopped)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.updates:
			p.print()
		case <-ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *progressPrinter) print() {
	p.mu.Lock()
	ok, fail, refs := p.ok, p.fail, p.refs
	completed := ok + fail
	if completed > p.total {
		p.total = completed
	}
	total := p.total
	p.mu.Unlock()

	percent := (float64(completed) / float64(total)) * 100
	fmt.Fprintf(p.out, "\r[%s] Files: %d/%d (%.1f%%) Parsed:%d Failed:%d Refs:%d",
		p.name, completed, total, percent, ok, fail, refs)
}
