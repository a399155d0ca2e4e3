// Package ingest validates incoming readings, persists them and mirrors the
// persisted batches to the time-series store.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"energyinsight/internal/energy"
	"energyinsight/internal/logger"
	"energyinsight/internal/metrics"
)

// Ingest sources, used as metric labels.
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

// ErrNoValidReadings is returned when every reading of a batch was rejected.
var ErrNoValidReadings = errors.New("no valid readings")

// Store persists readings.
type Store interface {
	SaveReadings(ctx context.Context, readings []energy.Reading) error
}

// Mirror receives every persisted batch. Its failures never fail an ingest.
type Mirror interface {
	WriteReadings(ctx context.Context, readings []energy.Reading) error
}

// Result describes one ingested batch.
type Result struct {
	Accepted int
	Rejected int
}

// Pipeline is the single write path for readings.
type Pipeline struct {
	store  Store
	mirror Mirror
	log    logger.Logger
}

// NewPipeline builds a pipeline. mirror may be nil.
func NewPipeline(store Store, mirror Mirror, log logger.Logger) *Pipeline {
	return &Pipeline{store: store, mirror: mirror, log: log}
}

// Ingest drops invalid readings, stores the rest in one call and then mirrors
// them.
func (p *Pipeline) Ingest(ctx context.Context, source string, readings []energy.Reading) (Result, error) {
	valid := make([]energy.Reading, 0, len(readings))
	var res Result
	for _, r := range readings {
		if err := r.Validate(); err != nil {
			res.Rejected++
			p.log.Debug(ctx, "reading rejected", logger.String("source", source), logger.Error(err))
			continue
		}
		valid = append(valid, r)
	}
	if res.Rejected > 0 {
		metrics.IngestErrors.WithLabelValues(source, "validate").Add(float64(res.Rejected))
	}
	if len(valid) == 0 {
		return res, ErrNoValidReadings
	}

	if err := p.store.SaveReadings(ctx, valid); err != nil {
		metrics.IngestErrors.WithLabelValues(source, "store").Inc()
		return res, fmt.Errorf("persist readings: %w", err)
	}
	res.Accepted = len(valid)
	metrics.ReadingsIngested.WithLabelValues(source).Add(float64(res.Accepted))

	if p.mirror != nil {
		if err := p.mirror.WriteReadings(ctx, valid); err != nil {
			metrics.IngestErrors.WithLabelValues(source, "mirror").Inc()
			p.log.Warn(ctx, "mirror write failed",
				logger.String("source", source),
				logger.Int("count", len(valid)),
				logger.Error(err))
		}
	}
	return res, nil
}
