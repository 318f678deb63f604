package feed

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hperssn/kioskcheck/internal/domain"
)

const socketSchema = `{
	"type": "object",
	"properties": {
		"temperature": {"type": ["string", "number"]},
		"alcoholLevel": {"type": "string"}
	}
}`

const pushSchema = `{
	"type": "object",
	"properties": {
		"sober": {"type": ["boolean", "integer"]},
		"drunk": {"type": ["boolean", "integer"]}
	}
}`

var (
	socketPayloadSchema = jsonschema.MustCompileString("socket.json", socketSchema)
	pushPayloadSchema   = jsonschema.MustCompileString("push.json", pushSchema)
)

// DecodeSocket turns a websocket frame such as
// {"temperature":"36.6","alcoholLevel":"normal"} into an Event.
// Unknown alcohol labels and unparseable temperatures are left unset. Frames
// that are not JSON objects of the expected shape, or that carry none of the
// known keys, are malformed: liveness only.
func DecodeSocket(source string, raw []byte, at time.Time) domain.Event {
	ev := domain.Event{Source: source, Alcohol: domain.Undetermined, At: at}

	fields, ok := decodeObject(socketPayloadSchema, raw, "temperature", "alcoholLevel")
	if !ok {
		ev.Malformed = true
		return ev
	}

	switch v := fields["temperature"].(type) {
	case string:
		if t, ok := domain.ParseTemperature(v); ok {
			ev.Temperature = &t
		}
	case json.Number:
		if t, ok := domain.ParseTemperature(v.String()); ok {
			ev.Temperature = &t
		}
	}

	if label, ok := fields["alcoholLevel"].(string); ok {
		ev.Alcohol, _ = domain.ParseClassification(label)
	}
	return ev
}

// DecodePush turns an alcohol_value node such as {"sober":true,"drunk":false}
// into an Event. Exactly one of the flags must be set for a classification;
// a node with neither flag present is malformed.
func DecodePush(source string, raw []byte, at time.Time) domain.Event {
	ev := domain.Event{Source: source, Alcohol: domain.Undetermined, At: at}

	fields, ok := decodeObject(pushPayloadSchema, raw, "sober", "drunk")
	if !ok {
		ev.Malformed = true
		return ev
	}

	sober, drunk := truthy(fields["sober"]), truthy(fields["drunk"])
	switch {
	case sober && !drunk:
		ev.Alcohol = domain.Normal
	case drunk && !sober:
		ev.Alcohol = domain.Abnormal
	}
	return ev
}

// decodeObject validates raw against schema and requires at least one of keys.
func decodeObject(schema *jsonschema.Schema, raw []byte, keys ...string) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, false
	}
	if err := schema.Validate(payload); err != nil {
		return nil, false
	}
	fields, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, k := range keys {
		if _, ok := fields[k]; ok {
			return fields, true
		}
	}
	return nil, false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case json.Number:
		n, err := x.Int64()
		return err == nil && n != 0
	}
	return false
}
