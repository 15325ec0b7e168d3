// Package stream reads the backend's push-event websocket and turns frames
// into reconciler events.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/reconciler"
)

// Push event names.
const (
	EventStatus     = "status"
	EventSensorData = "sensor_data"
)

var (
	ErrMissingTimestamp = errors.New("sample has no timestamp")
	ErrNonNumeric       = errors.New("non-numeric sample value")
	ErrUnknownEvent     = errors.New("unknown push event")
)

// Frame is one websocket message from the backend.
type Frame struct {
	Event string          `json:"event" validate:"required"`
	Seq   uint64          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// StatusPayload is the data of a status frame. Missing flags read as false.
type StatusPayload struct {
	Connected bool `json:"connected"`
	Streaming bool `json:"streaming"`
	Logging   bool `json:"logging"`
}

type samplePayload struct {
	Timestamp *float64 `validate:"required"`
}

var validate = validator.New()

// Decode parses one frame. Sensor frames that carry a bad sample decode to a
// SampleEvent with Err set so the reconciler can count them; an error is
// returned only when the frame itself cannot be understood.
func Decode(raw []byte) (reconciler.Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Event {
	case EventStatus:
		var p StatusPayload
		if len(f.Data) > 0 && string(f.Data) != "null" {
			if err := json.Unmarshal(f.Data, &p); err != nil {
				return nil, fmt.Errorf("decode status: %w", err)
			}
		}
		return reconciler.StatusEvent{
			Status: model.SystemStatus{Connected: p.Connected, Streaming: p.Streaming, Logging: p.Logging},
			Seq:    f.Seq,
		}, nil
	case EventSensorData:
		sample, err := DecodeSample(f.Data)
		return reconciler.SampleEvent{Sample: sample, Err: err}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
}

// DecodeSample parses a sensor_data payload. Null or absent metric fields
// mean no new reading for that metric.
func DecodeSample(data json.RawMessage) (model.SensorSample, error) {
	var sample model.SensorSample
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return sample, fmt.Errorf("decode sample: %w", err)
	}

	ts, err := number(fields, "timestamp")
	if err != nil {
		return sample, err
	}
	if err := validate.Struct(samplePayload{Timestamp: ts}); err != nil {
		return sample, ErrMissingTimestamp
	}
	sample.Timestamp = *ts

	for _, m := range model.Metrics {
		v, err := number(fields, string(m))
		if err != nil {
			return model.SensorSample{}, err
		}
		if v != nil {
			sample.Set(m, *v)
		}
	}
	return sample, nil
}

func number(fields map[string]json.RawMessage, key string) (*float64, error) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %s=%s", ErrNonNumeric, key, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %s=%s", ErrNonNumeric, key, raw)
	}
	return &v, nil
}

// Encode builds a frame for the given event name and payload.
func Encode(event string, seq uint64, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Seq: seq, Data: data})
}
