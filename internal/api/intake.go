package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"gbfs-sync/internal/delta"
	"gbfs-sync/internal/ingest"
	"gbfs-sync/internal/logger"
	"gbfs-sync/internal/updater"
)

const maxDeltaBody = 32 << 20

type vehicleFeed struct{ delta.VehicleFeed }

func (f *vehicleFeed) setProvider(id string) { f.ProviderID = id }
func (f *vehicleFeed) window() (*int64, int64) {
	return f.Delta.Base, f.Delta.Compare
}

type stationFeed struct{ delta.StationFeed }

func (f *stationFeed) setProvider(id string) { f.ProviderID = id }
func (f *stationFeed) window() (*int64, int64) {
	return f.Delta.Base, f.Delta.Compare
}

type feed[F any] interface {
	*F
	setProvider(id string)
	window() (base *int64, compare int64)
}

// intakeResponse：批次应用结果；Duplicate 表示重投的批次已被忽略
type intakeResponse struct {
	updater.Result
	Duplicate bool `json:"duplicate,omitempty"`
}

// intake：解码增量批次并放入提供方的串行队列，等待应用完成后返回统计
func intake[F any, P feed[F]](d Deps, kind string, apply func(context.Context, P) (updater.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := r.PathValue("provider")
		f := P(new(F))
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDeltaBody)).Decode(f); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode delta: %w", err))
			return
		}
		f.setProvider(providerID)
		fp := fingerprint[F, P](kind, providerID, f)

		var resp intakeResponse
		err := d.Dispatcher.Do(r.Context(), providerID, func(ctx context.Context) error {
			if d.Dedup.Seen(ctx, fp) {
				resp.Duplicate = true
				return nil
			}
			res, err := apply(ctx, f)
			resp.Result = res
			if err != nil {
				return err
			}
			d.Dedup.Mark(ctx, fp)
			return nil
		})
		if err != nil {
			logger.L().Warn("intake_error", "kind", kind, "provider", providerID, "err", err)
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func fingerprint[F any, P feed[F]](kind, providerID string, f P) string {
	base, compare := f.window()
	b := "-"
	if base != nil {
		b = strconv.FormatInt(*base, 10)
	}
	return kind + "|" + providerID + "|" + b + "|" + strconv.FormatInt(compare, 10)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, updater.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, updater.ErrProviderDisabled), errors.Is(err, updater.ErrFeedExcluded):
		return http.StatusConflict
	case errors.Is(err, updater.ErrNotLeader), errors.Is(err, ingest.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ingest.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
