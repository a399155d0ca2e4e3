package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/valyala/fasthttp"

	"energyinsight/internal/config"
	"energyinsight/internal/energy"
	"energyinsight/internal/ingest"
	"energyinsight/internal/logger"
)

// maxReadingsPerRequest bounds one POST body.
const maxReadingsPerRequest = 10000

// ReadingSink accepts validated batches.
type ReadingSink interface {
	Ingest(ctx context.Context, source string, readings []energy.Reading) (ingest.Result, error)
}

type ingestRequest struct {
	Readings []ingest.Record `json:"readings"`
}

// IngestReadings stores readings posted by the authenticated user. Records
// that fail to parse or validate are skipped; the response reports how many
// were accepted.
func IngestReadings(sink ReadingSink, cfg *config.Config) fasthttp.RequestHandler {
	loc := location(cfg)
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		var payload ingestRequest
		if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(payload.Readings) == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "no readings provided")
			return
		}
		if len(payload.Readings) > maxReadingsPerRequest {
			errResponse(ctx, fasthttp.StatusRequestEntityTooLarge, "at most "+strconv.Itoa(maxReadingsPerRequest)+" readings per request")
			return
		}

		readings := make([]energy.Reading, 0, len(payload.Readings))
		skipped := 0
		for _, rec := range payload.Readings {
			// The caller owns what they post, whatever user_id says.
			r, err := rec.Reading(user.ID, loc)
			if err != nil {
				skipped++
				continue
			}
			readings = append(readings, r)
		}
		if len(readings) == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "no valid readings after validation")
			return
		}

		c, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
		defer cancel()
		res, err := sink.Ingest(c, ingest.SourceHTTP, readings)
		if err != nil {
			if errors.Is(err, ingest.ErrNoValidReadings) {
				errResponse(ctx, fasthttp.StatusBadRequest, "no valid readings after validation")
				return
			}
			logger.Named("ingest").Error(ctx, "persist readings failed", logger.Uint("user_id", user.ID), logger.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to persist readings")
			return
		}

		jsonResponse(ctx, fasthttp.StatusAccepted, map[string]any{
			"status":   "accepted",
			"count":    res.Accepted,
			"rejected": skipped + res.Rejected,
		})
	}
}

