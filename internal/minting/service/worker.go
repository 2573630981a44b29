package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"aurum/internal/minting/models"
	"aurum/pkg/domain"
)

const (
	defaultInboxSize   = 1024
	defaultConcurrency = 4
	defaultSweepEvery  = 30 * time.Second
)

// Worker drains admitted mint requests and drives them to a terminal state.
// The per-token guard inside Process serializes concurrent requests for the
// same token, so multiple consumers are safe. A periodic sweep picks up
// PENDING requests that never reached the inbox, such as after a restart or a
// full queue.
type Worker struct {
	svc         *Service
	inbox       chan domain.RequestID
	concurrency int
	sweepEvery  time.Duration
	logger      *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithSweepInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.sweepEvery = d
		}
	}
}

// NewWorker constructs the execution worker for a minting service. The worker
// registers itself as the service's queue unless one is already set.
func NewWorker(svc *Service, opts ...WorkerOption) *Worker {
	w := &Worker{
		svc:         svc,
		inbox:       make(chan domain.RequestID, defaultInboxSize),
		concurrency: defaultConcurrency,
		sweepEvery:  defaultSweepEvery,
	}
	for _, opt := range opts {
		opt(w)
	}
	if svc.queue == nil {
		svc.queue = w
	}
	return w
}

// Enqueue hands a request id to the worker without blocking. A false return
// means the inbox is full; the sweep will claim the request later.
func (w *Worker) Enqueue(ctx context.Context, id domain.RequestID) bool {
	select {
	case w.inbox <- id:
		return true
	default:
		return false
	}
}

// Run consumes the inbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for i := 0; i < w.concurrency; i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case id := <-w.inbox:
					w.process(ctx, id)
				}
			}
		})
	}

	group.Go(func() error {
		ticker := time.NewTicker(w.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	})

	return group.Wait()
}

func (w *Worker) process(ctx context.Context, id domain.RequestID) {
	if _, err := w.svc.Process(ctx, id); err != nil && w.logger != nil {
		w.logger.WarnContext(ctx, "mint processing ended in failure",
			"request_id", id,
			"error", err,
		)
	}
}

// sweep re-enqueues PENDING requests the inbox lost.
func (w *Worker) sweep(ctx context.Context) {
	pending, err := w.svc.FindByStatus(ctx, models.StatusPending)
	if err != nil {
		if w.logger != nil {
			w.logger.ErrorContext(ctx, "pending sweep failed", "error", err)
		}
		return
	}
	for _, request := range pending {
		if !w.Enqueue(ctx, request.ID) {
			return
		}
	}
}
