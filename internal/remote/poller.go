package remote

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthkin/questlink/internal/model"
)

// Source is what the poller reads. Both execution modes satisfy it.
type Source interface {
	PendingForParent(ctx context.Context, parentID string) ([]model.Link, error)
	TasksForChild(ctx context.Context, childID string) ([]model.AssignedTask, error)
}

// Poller substitutes for push delivery: it periodically re-reads pending
// links (parent side) and assignments (child side) and reports new ones.
type Poller struct {
	src      Source
	interval time.Duration
	logger   *slog.Logger

	parentID string
	childID  string
	onLink   func(model.Link)
	onTask   func(model.AssignedTask)

	seenLinks map[string]bool
	seenTasks map[string]bool

	stopCh  chan struct{}
	stopped chan struct{}
}

// NewPoller creates a poller for the given actor ids; either may be empty
// to skip that side. Interval defaults to 7 seconds.
func NewPoller(src Source, parentID, childID string, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 7 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		src:       src,
		interval:  interval,
		logger:    logger,
		parentID:  parentID,
		childID:   childID,
		seenLinks: make(map[string]bool),
		seenTasks: make(map[string]bool),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// OnPendingLink registers the callback for newly seen pending links.
func (p *Poller) OnPendingLink(fn func(model.Link)) { p.onLink = fn }

// OnAssignedTask registers the callback for newly seen assignments.
func (p *Poller) OnAssignedTask(fn func(model.AssignedTask)) { p.onTask = fn }

// Start begins polling until Stop or context cancellation.
func (p *Poller) Start(ctx context.Context) {
	p.poll(ctx)

	go func() {
		defer close(p.stopped)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.poll(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.stopped
}

func (p *Poller) poll(ctx context.Context) {
	if p.parentID != "" && p.onLink != nil {
		links, err := p.src.PendingForParent(ctx, p.parentID)
		if err != nil {
			p.logger.Warn("poll pending links failed", "error", err)
		}
		for _, ln := range links {
			if !p.seenLinks[ln.ID] {
				p.seenLinks[ln.ID] = true
				p.onLink(ln)
			}
		}
	}

	if p.childID != "" && p.onTask != nil {
		tasks, err := p.src.TasksForChild(ctx, p.childID)
		if err != nil {
			p.logger.Warn("poll tasks failed", "error", err)
		}
		for _, t := range tasks {
			if !p.seenTasks[t.ID] {
				p.seenTasks[t.ID] = true
				p.onTask(t)
			}
		}
	}
}
