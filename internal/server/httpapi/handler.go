package httpapi

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/openvelo/openvelo/internal/logging"
	"github.com/openvelo/openvelo/internal/server/metrics"
	"github.com/openvelo/openvelo/internal/server/models"
	"github.com/openvelo/openvelo/internal/server/projector"
	"github.com/openvelo/openvelo/internal/server/repositories/events"
	"github.com/openvelo/openvelo/internal/server/session"
)

// deviceHandler turns device notifications into event-log appends and
// projection updates. Appends are retried with exponential backoff; an
// event that cannot be persisted terminates the session rather than being
// dropped, so the device reconnects and republishes its state.
type deviceHandler struct {
	events    events.Repository
	projector *projector.Projector
	metrics   *metrics.Metrics
	logger    logging.Logger
	now       func() time.Time
}

func newDeviceHandler(repo events.Repository, proj *projector.Projector, m *metrics.Metrics, logger logging.Logger) *deviceHandler {
	return &deviceHandler{
		events:    repo,
		projector: proj,
		metrics:   m,
		logger:    logger.With("module", "device_handler"),
		now:       time.Now,
	}
}

func (h *deviceHandler) HandleCurrentStatus(ctx context.Context, deviceID string, st session.CurrentStatus) error {
	at := h.eventTime(st.Time)
	if err := h.record(ctx, models.NewLockStateUpdate(deviceID, st.Locked, at)); err != nil {
		return err
	}
	if st.Lat != nil && st.Lng != nil {
		point := models.Point{Lat: *st.Lat, Lng: *st.Lng}
		if err := h.record(ctx, models.NewLocationUpdate(deviceID, point, at)); err != nil {
			return err
		}
	}
	return nil
}

func (h *deviceHandler) HandleLocationUpdate(ctx context.Context, deviceID string, u session.LocationUpdate) error {
	point := models.Point{Lat: u.Lat, Lng: u.Lng}
	return h.record(ctx, models.NewLocationUpdate(deviceID, point, h.eventTime(u.Time)))
}

func (h *deviceHandler) HandleLockStateUpdate(ctx context.Context, deviceID string, u session.LockStateUpdate) error {
	return h.record(ctx, models.NewLockStateUpdate(deviceID, u.Locked, h.eventTime(u.Time)))
}

// record appends the event and, once durable, folds it into the
// projection. Every event is appended even when it is older than the
// projection's view; the projector is what refuses to go backwards.
func (h *deviceHandler) record(ctx context.Context, event *models.Event) error {
	backoff := retry.WithMaxRetries(4, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := h.events.Append(ctx, event); err != nil {
			h.logger.Warn(ctx, "event append failed, retrying", "device_id", event.DeviceID, "kind", event.Kind, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		h.logger.Error(ctx, "event append failed permanently", "device_id", event.DeviceID, "kind", event.Kind, "error", err)
		return err
	}

	h.projector.Apply(event)
	if h.metrics != nil {
		h.metrics.EventsAppended.WithLabelValues(string(event.Kind)).Inc()
	}
	return nil
}

// eventTime converts a device-supplied unix-millisecond stamp, falling
// back to the arrival time when the device sent none.
func (h *deviceHandler) eventTime(ms int64) time.Time {
	if ms == 0 {
		return h.now()
	}
	return time.UnixMilli(ms)
}
