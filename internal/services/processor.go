package services

import (
	"context"
	"log/slog"
	"sync"

	"bilancio/internal/core"
)

// Processor ties the scheduler and the alert engine into one serialized
// pass. A mutex guarantees materialization and evaluation never interleave,
// so aggregates always reflect a fully caught-up ledger when thresholds are
// checked.
type Processor struct {
	mu         sync.Mutex
	scheduler  *Scheduler
	engine     *AlertEngine
	dispatcher AlertDispatcher
}

func NewProcessor(scheduler *Scheduler, engine *AlertEngine, dispatcher AlertDispatcher) *Processor {
	return &Processor{
		scheduler:  scheduler,
		engine:     engine,
		dispatcher: dispatcher,
	}
}

// RunPass materializes every due recurring occurrence up to now, then runs
// one alert evaluation for the given trigger. Returns the transactions
// created during catch-up.
func (p *Processor) RunPass(ctx context.Context, trigger Trigger, now core.Date) ([]core.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	created, err := p.scheduler.MaterializeDue(ctx, now)
	if err != nil {
		return created, err
	}

	alert, err := p.engine.Evaluate(ctx, trigger, now)
	if err != nil {
		return created, err
	}
	if alert == nil {
		return created, nil
	}

	if p.dispatcher == nil {
		slog.WarnContext(ctx, "No alert dispatcher configured, dropping alert", "message", alert.Message)
		return created, nil
	}
	if err := p.dispatcher.Dispatch(ctx, *alert); err != nil {
		slog.ErrorContext(ctx, "Failed to dispatch alert", "message", alert.Message, "error", err)
	}
	return created, nil
}
