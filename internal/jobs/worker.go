package jobs

import (
	"context"
	"log"
	"time"
)

// Poller is one unit of background work. Poll is invoked once per tick and
// is expected to drain at most a bounded amount of work before returning.
type Poller interface {
	Poll(ctx context.Context) error
}

// Worker drives a Poller on a fixed interval until stopped. The transform
// and embedding-backfill pollers each get their own Worker.
type Worker struct {
	name     string
	poller   Poller
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewWorker(name string, poller Poller, interval time.Duration) *Worker {
	return &Worker{
		name:     name,
		poller:   poller,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled or Stop is
// called. Poll errors are logged and the loop keeps ticking.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("%s worker polling every %v", w.name, w.interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s worker stopped: context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("%s worker stopped", w.name)
			return
		case <-ticker.C:
			if err := w.poller.Poll(ctx); err != nil {
				log.Printf("%s worker poll: %v", w.name, err)
			}
		}
	}
}

// Stop signals the loop to exit and blocks until it has drained.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
