package service

import (
	"context"
	"log/slog"

	"github.com/blackstrype/trainline/internal/domain"
)

// ResultCounter records enrichment outcomes, typically into metrics.
type ResultCounter interface {
	CountResult(res domain.EnrichmentResult)
}

// ResultObserver listens on the response topic. It only logs and counts;
// nothing in this service reacts to results.
type ResultObserver struct {
	counter ResultCounter
	log     *slog.Logger
}

// NewResultObserver constructs a ResultObserver. counter may be nil.
func NewResultObserver(counter ResultCounter, log *slog.Logger) *ResultObserver {
	if log == nil {
		log = slog.Default()
	}
	return &ResultObserver{counter: counter, log: log}
}

// Handle records one result. It never fails.
func (o *ResultObserver) Handle(ctx context.Context, res domain.EnrichmentResult) error {
	level := slog.LevelInfo
	if res.Status == domain.OutcomeFail {
		level = slog.LevelWarn
	}
	o.log.Log(ctx, level, "enrichment result",
		"stop_id", res.StopID,
		"station_id", res.StationID,
		"outcome", res.Status,
		"stop_state", res.StopState,
		"detail", res.Detail,
	)
	if o.counter != nil {
		o.counter.CountResult(res)
	}
	return nil
}
