// Package influx mirrors persisted readings into an InfluxDB v2 bucket.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"energyinsight/internal/config"
	"energyinsight/internal/energy"
)

// Measurement is the measurement every mirrored reading is written to.
const Measurement = "energy_reading"

const healthTimeout = 5 * time.Second

// Mirror writes readings to InfluxDB with the blocking write API so a batch
// either lands or reports an error to the caller.
type Mirror struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
}

// NewMirror connects to InfluxDB and verifies the server is healthy.
func NewMirror(ctx context.Context, cfg *config.Config) (*Mirror, error) {
	opts := influxdb2.DefaultOptions().SetPrecision(time.Second)
	client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)

	hctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if _, err := client.Health(hctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to influxdb %s: %w", cfg.InfluxURL, err)
	}

	return &Mirror{
		client: client,
		writer: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
	}, nil
}

// WriteReadings writes one point per reading.
func (m *Mirror) WriteReadings(ctx context.Context, readings []energy.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	points := make([]*write.Point, len(readings))
	for i, r := range readings {
		points[i] = toPoint(r)
	}
	if err := m.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points: %w", len(points), err)
	}
	return nil
}

// Close releases the client.
func (m *Mirror) Close() {
	if m.client != nil {
		m.client.Close()
	}
}

func toPoint(r energy.Reading) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{
			"user_id":     strconv.FormatUint(uint64(r.OwnerID), 10),
			"energy_type": string(r.Category),
		},
		map[string]interface{}{
			"consumption": r.Consumption,
			"generation":  r.Generation,
		},
		r.Timestamp,
	)
}
