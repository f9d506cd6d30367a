package functions

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Event types understood by the host.
const (
	SubscriptionValidationEvent = "Microsoft.EventGrid.SubscriptionValidationEvent"
	TwinUpdateEvent             = "Microsoft.DigitalTwins.Twin.Update"
)

const maxBodyBytes = 1 << 20

// Event is one entry of an Event Grid delivery.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic,omitempty"`
	Subject     string          `json:"subject"`
	EventType   string          `json:"eventType"`
	EventTime   time.Time       `json:"eventTime"`
	Data        json.RawMessage `json:"data"`
	DataVersion string          `json:"dataVersion,omitempty"`
}

type validationData struct {
	ValidationCode string `json:"validationCode"`
	ValidationURL  string `json:"validationUrl,omitempty"`
}

type validationResponse struct {
	ValidationResponse string `json:"validationResponse"`
}

// hubMessage is the data of an IoT Hub telemetry event.
type hubMessage struct {
	Body             json.RawMessage   `json:"body"`
	SystemProperties map[string]string `json:"systemProperties"`
}

// twinUpdate is the data of a routed twin change notification.
type twinUpdate struct {
	Data struct {
		ModelID string      `json:"modelId"`
		Patch   []patchItem `json:"patch"`
	} `json:"data"`
}

type patchItem struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// decodeEvents reads an Event Grid delivery. A single event object is
// accepted as well as the usual array.
func decodeEvents(w http.ResponseWriter, r *http.Request) ([]Event, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	var events []Event
	if err := json.Unmarshal(body, &events); err == nil {
		return events, nil
	}
	var single Event
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	return []Event{single}, nil
}

// validationCode returns the handshake code when events is a subscription
// validation delivery.
func validationCode(events []Event) (string, bool, error) {
	for _, e := range events {
		if e.EventType != SubscriptionValidationEvent {
			continue
		}
		var data validationData
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return "", true, fmt.Errorf("invalid validation event: %w", err)
		}
		if data.ValidationCode == "" {
			return "", true, errors.New("validation event has no validation code")
		}
		return data.ValidationCode, true, nil
	}
	return "", false, nil
}

// telemetry extracts the device id and temperature of a hub event. The body
// arrives base64 encoded when the device did not declare JSON content.
func telemetry(e Event) (string, float64, error) {
	var msg hubMessage
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		return "", 0, fmt.Errorf("event %s: invalid hub message: %w", e.ID, err)
	}
	deviceID := msg.SystemProperties["iothub-connection-device-id"]
	if deviceID == "" {
		return "", 0, fmt.Errorf("event %s: missing iothub-connection-device-id", e.ID)
	}

	body := msg.Body
	var encoded string
	if err := json.Unmarshal(body, &encoded); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", 0, fmt.Errorf("event %s: body is neither JSON nor base64: %w", e.ID, err)
		}
		body = decoded
	}

	var payload struct {
		Temperature *float64 `json:"Temperature"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, fmt.Errorf("event %s: invalid body: %w", e.ID, err)
	}
	if payload.Temperature == nil {
		return "", 0, fmt.Errorf("event %s: body has no Temperature", e.ID)
	}
	return deviceID, *payload.Temperature, nil
}
