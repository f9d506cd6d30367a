// Package functions hosts the event-processing webhooks of the end-to-end
// demo: device telemetry is written to its twin, and a twin's temperature
// changes are copied to the twin that contains it.
package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vk/twinctl/internal/ctxlog"
	"github.com/vk/twinctl/internal/twins"
)

const temperaturePath = "/Temperature"

// TwinAPI is the part of the twins client the host needs.
type TwinAPI interface {
	UpdateTwin(ctx context.Context, id string, patch twins.Patch) error
	FindParent(ctx context.Context, childID, name string) (string, error)
}

// Options configures a Host.
type Options struct {
	// Relationship links a parent to the twins it aggregates.
	Relationship    string
	ParentCacheSize int
	// Broadcasters receive every update next to the websocket hub.
	Broadcasters []Broadcaster
}

// Host processes Event Grid deliveries against one twins instance.
type Host struct {
	twins        TwinAPI
	relationship string
	parents      *lru.Cache[string, string]
	hub          *Hub
	broadcast    Broadcasters
	now          func() time.Time
}

func NewHost(api TwinAPI, opts Options) (*Host, error) {
	if api == nil {
		return nil, fmt.Errorf("twins client is required")
	}
	relationship := opts.Relationship
	if relationship == "" {
		relationship = "contains"
	}
	size := opts.ParentCacheSize
	if size <= 0 {
		size = 1024
	}
	parents, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create parent cache: %w", err)
	}
	hub := NewHub()
	return &Host{
		twins:        api,
		relationship: relationship,
		parents:      parents,
		hub:          hub,
		broadcast:    append(Broadcasters{hub}, opts.Broadcasters...),
		now:          time.Now,
	}, nil
}

// Hub returns the websocket hub observers connect to.
func (h *Host) Hub() *Hub { return h.hub }

// Handler routes the webhooks, the observer socket and the health check.
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ProcessHubToTwinEvents", h.eventGridHandler(h.processHubToTwinEvents))
	mux.HandleFunc("POST /api/ProcessTwinRoutedData", h.eventGridHandler(h.processTwinRoutedData))
	mux.Handle("GET /ws/twins", h.hub)
	mux.HandleFunc("GET /health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(r.Context()).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// statusError carries the HTTP status a processing failure answers with.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

type processFunc func(ctx context.Context, events []Event) error

// eventGridHandler decodes a delivery, answers the subscription handshake
// and passes every other delivery to process.
func (h *Host) eventGridHandler(process processFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.FromContext(r.Context())
		events, err := decodeEvents(w, r)
		if err != nil {
			logger.Warn("Rejected event delivery.", "path", r.URL.Path, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		code, isValidation, err := validationCode(events)
		if isValidation {
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.Info("🤝 Event Grid subscription validated.", "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(validationResponse{ValidationResponse: code})
			return
		}

		if err := process(r.Context(), events); err != nil {
			status := http.StatusInternalServerError
			var se *statusError
			if errors.As(err, &se) {
				status = se.status
			}
			logger.Error("Event processing failed.", "path", r.URL.Path, "status", status, "error", err)
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// processHubToTwinEvents writes each telemetry temperature to the device's
// twin. A failed update fails the delivery so Event Grid redelivers it.
func (h *Host) processHubToTwinEvents(ctx context.Context, events []Event) error {
	logger := ctxlog.FromContext(ctx)
	for _, e := range events {
		deviceID, temperature, err := telemetry(e)
		if err != nil {
			return &statusError{status: http.StatusBadRequest, err: err}
		}
		logger.Info("Device telemetry received.", "device", deviceID, "temperature", temperature)

		if err := h.twins.UpdateTwin(ctx, deviceID, twins.Patch{}.Replace(temperaturePath, temperature)); err != nil {
			return &statusError{status: http.StatusBadGateway, err: fmt.Errorf("failed to update twin %s: %w", deviceID, err)}
		}
		h.publish(ctx, Update{TwinID: deviceID, Property: "Temperature", Value: temperature, Source: "iothub"})
	}
	return nil
}

// processTwinRoutedData copies every replaced Temperature of a twin to its
// parent. Lookup and update failures are logged and the event is
// acknowledged, matching the fire-and-forget routing of twin events.
func (h *Host) processTwinRoutedData(ctx context.Context, events []Event) error {
	logger := ctxlog.FromContext(ctx)
	for _, e := range events {
		twinID := e.Subject
		if twinID == "" {
			return &statusError{status: http.StatusBadRequest, err: fmt.Errorf("event %s: missing subject", e.ID)}
		}
		var msg twinUpdate
		if err := json.Unmarshal(e.Data, &msg); err != nil {
			return &statusError{status: http.StatusBadRequest, err: fmt.Errorf("event %s: invalid twin update: %w", e.ID, err)}
		}
		logger.Info("Reading twin event.", "twin", twinID, "type", e.EventType, "ops", len(msg.Data.Patch))

		var temps []float64
		for _, op := range msg.Data.Patch {
			if op.Op != "replace" || op.Path != temperaturePath {
				continue
			}
			var v float64
			if err := json.Unmarshal(op.Value, &v); err != nil {
				logger.Warn("Temperature is not a number.", "twin", twinID, "value", string(op.Value))
				continue
			}
			temps = append(temps, v)
		}
		if len(temps) == 0 {
			continue
		}

		parentID, err := h.parentOf(ctx, twinID)
		if err != nil {
			logger.Error("*** Error in retrieving parent.", "twin", twinID, "error", err)
			continue
		}
		if parentID == "" {
			logger.Debug("Twin has no parent.", "twin", twinID, "relationship", h.relationship)
			continue
		}

		for _, v := range temps {
			if err := h.twins.UpdateTwin(ctx, parentID, twins.Patch{}.Add(temperaturePath, v)); err != nil {
				if twins.IsNotFound(err) {
					h.parents.Remove(twinID)
				}
				logger.Error("*** Error updating parent.", "parent", parentID, "error", err)
				continue
			}
			h.publish(ctx, Update{TwinID: parentID, Property: "Temperature", Value: v, Source: twinID})
		}
	}
	return nil
}

// parentOf resolves the parent of a twin. Only found parents are cached so
// a relationship created later is still picked up.
func (h *Host) parentOf(ctx context.Context, twinID string) (string, error) {
	if parent, ok := h.parents.Get(twinID); ok {
		return parent, nil
	}
	parent, err := h.twins.FindParent(ctx, twinID, h.relationship)
	if err != nil {
		return "", err
	}
	if parent != "" {
		h.parents.Add(twinID, parent)
	}
	return parent, nil
}

func (h *Host) publish(ctx context.Context, u Update) {
	u.Time = h.now().UTC()
	if err := h.broadcast.Broadcast(ctx, u); err != nil {
		ctxlog.FromContext(ctx).Warn("Broadcasting update failed.", "twin", u.TwinID, "error", err)
	}
}
