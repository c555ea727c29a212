package cmd

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/khanhnv2901/webposture/internal/progress"
)

// progressPrinter renders a single updating line while a scan runs. It
// polls the snapshot source rather than receiving pushes so the scan
// pipeline never blocks on terminal output.
type progressPrinter struct {
	fetch    func() (progress.Snapshot, error)
	done     chan struct{}
	stopOnce sync.Once
}

func newProgressPrinter(fetch func() (progress.Snapshot, error)) *progressPrinter {
	return &progressPrinter{
		fetch: fetch,
		done:  make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	go p.loop()
}

func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	fmt.Fprintf(os.Stdout, "\r%s\r", strings.Repeat(" ", 80))
}

func (p *progressPrinter) loop() {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *progressPrinter) print() {
	snap, err := p.fetch()
	if err != nil {
		return
	}
	line := fmt.Sprintf("[%3d%%] %s (elapsed %s, remaining %s)",
		snap.ProgressPercentage, snap.CurrentStep, snap.TimeElapsed, snap.EstimatedRemaining)
	if len(line) > 78 {
		line = line[:78]
	}
	fmt.Fprintf(os.Stdout, "\r%-78s", line)
}
