// Package metrics owns the Prometheus registry and collectors of the service.
package metrics

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "energyinsight"

// Registry is the registry every collector below is registered with.
var Registry = prometheus.NewRegistry()

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served.",
		},
		[]string{"route", "method", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)
	AggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Time spent bucketizing and aggregating readings for one request.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"timeframe"},
	)
	BucketsPerRequest = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "buckets_per_request",
			Help:      "Number of minute buckets produced per request.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"timeframe"},
	)
	ReadingsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Readings persisted, by ingest source.",
		},
		[]string{"source"},
	)
	IngestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Ingest failures, by source and stage.",
		},
		[]string{"source", "stage"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RequestsTotal,
		RequestDuration,
		AggregationDuration,
		BucketsPerRequest,
		ReadingsIngested,
		IngestErrors,
	)
}

// Encode renders the families gathered from g in the Prometheus text format.
// A non-empty prefix keeps only families whose name starts with it.
func Encode(g prometheus.Gatherer, prefix string) ([]byte, string, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, "", fmt.Errorf("gather metrics: %w", err)
	}
	families = filterFamilies(families, prefix)

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, "", fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), string(expfmt.FmtText), nil
}

func filterFamilies(families []*dto.MetricFamily, prefix string) []*dto.MetricFamily {
	if prefix == "" {
		return families
	}
	kept := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), prefix) {
			kept = append(kept, mf)
		}
	}
	return kept
}
