package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"energyinsight/internal/config"
	"energyinsight/internal/energy"
	"energyinsight/internal/logger"
	"energyinsight/internal/metrics"
)

// ReadingSource loads a user's readings for an inclusive time range.
type ReadingSource interface {
	ReadingsBetween(ctx context.Context, userID uint, start, end time.Time) ([]energy.Reading, error)
}

// ApplianceStore reads and replaces a user's appliance catalogue.
type ApplianceStore interface {
	AppliancesFor(ctx context.Context, userID uint) ([]energy.Appliance, error)
	ReplaceAppliances(ctx context.Context, userID uint, items []energy.Appliance) error
}

// energyView is the per-request result shared by the data and stats routes.
type energyView struct {
	buckets []energy.Bucket
	summary energy.Summary
}

func location(cfg *config.Config) *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		return time.Local
	}
	return loc
}

// loadView resolves the timeframe, loads the caller's readings and
// aggregates them. It writes the error response itself and reports false
// when the request cannot proceed.
func loadView(ctx *fasthttp.RequestCtx, readings ReadingSource, cfg *config.Config, loc *time.Location, now func() time.Time) (energyView, bool) {
	user, ok := MustUser(ctx)
	if !ok {
		return energyView{}, false
	}

	tf, err := energy.ParseTimeframe(string(ctx.QueryArgs().Peek("timeframe")))
	if err != nil {
		errResponse(ctx, fasthttp.StatusBadRequest, "timeframe must be one of today, month, year")
		return energyView{}, false
	}
	w := tf.Window(now().In(loc))

	c, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
	defer cancel()
	rs, err := readings.ReadingsBetween(c, user.ID, w.Start, w.End)
	if err != nil {
		logger.Named("energy").Error(ctx, "load readings failed",
			logger.Uint("user_id", user.ID),
			logger.String("timeframe", string(tf)),
			logger.Error(err))
		errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load energy data")
		return energyView{}, false
	}

	// Bucket keys are wall-clock minutes in the configured zone.
	for i := range rs {
		rs[i].Timestamp = rs[i].Timestamp.In(loc)
	}

	start := time.Now()
	buckets, summary := energy.BucketizeAndAggregate(rs, w)
	metrics.AggregationDuration.WithLabelValues(string(tf)).Observe(time.Since(start).Seconds())
	metrics.BucketsPerRequest.WithLabelValues(string(tf)).Observe(float64(len(buckets)))

	return energyView{buckets: buckets, summary: summary}, true
}

// EnergyData serves the caller's minute buckets for the requested timeframe.
func EnergyData(readings ReadingSource, cfg *config.Config, now func() time.Time) fasthttp.RequestHandler {
	loc := location(cfg)
	return func(ctx *fasthttp.RequestCtx) {
		view, ok := loadView(ctx, readings, cfg, loc, now)
		if !ok {
			return
		}
		out := make([]energy.Bucket, len(view.buckets))
		for i, b := range view.buckets {
			out[i] = b.Rounded()
		}
		jsonResponse(ctx, fasthttp.StatusOK, out)
	}
}

// EnergyStats serves the caller's summary for the requested timeframe.
func EnergyStats(readings ReadingSource, cfg *config.Config, now func() time.Time) fasthttp.RequestHandler {
	loc := location(cfg)
	return func(ctx *fasthttp.RequestCtx) {
		view, ok := loadView(ctx, readings, cfg, loc, now)
		if !ok {
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, view.summary)
	}
}

// Appliances serves the caller's appliance catalogue.
func Appliances(store ApplianceStore, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		c, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
		defer cancel()
		items, err := store.AppliancesFor(c, user.ID)
		if err != nil {
			logger.Named("energy").Error(ctx, "load appliances failed", logger.Uint("user_id", user.ID), logger.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load appliances")
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, items)
	}
}

var errInvalidAppliance = errors.New("every appliance needs a name and a non-negative consumption")

func validateAppliances(items []energy.Appliance) error {
	for _, a := range items {
		if a.Name == "" || a.Consumption < 0 || a.StandbyPower < 0 || a.UsageHours < 0 || a.UsageHours > 24 {
			return errInvalidAppliance
		}
	}
	return nil
}

// ReplaceAppliances stores a new catalogue for the caller and returns it.
func ReplaceAppliances(store ApplianceStore, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		var items []energy.Appliance
		if err := json.Unmarshal(ctx.PostBody(), &items); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := validateAppliances(items); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		c, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
		defer cancel()
		if err := store.ReplaceAppliances(c, user.ID, items); err != nil {
			logger.Named("energy").Error(ctx, "replace appliances failed", logger.Uint("user_id", user.ID), logger.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to store appliances")
			return
		}
		stored, err := store.AppliancesFor(c, user.ID)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load appliances")
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, stored)
	}
}
