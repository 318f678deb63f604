package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Classification is the resolved result of the alcohol stage.
type Classification string

const (
	Undetermined Classification = "undetermined"
	Normal       Classification = "normal"
	Abnormal     Classification = "abnormal"
)

// ParseClassification maps a sensor label onto a Classification. Only
// "normal" and "abnormal" are recognized; anything else is Undetermined.
func ParseClassification(s string) (Classification, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Normal):
		return Normal, true
	case string(Abnormal):
		return Abnormal, true
	}
	return Undetermined, false
}

// Resolved reports whether c is a final NORMAL/ABNORMAL value.
func (c Classification) Resolved() bool {
	return c == Normal || c == Abnormal
}

// ParseTemperature parses the numeric string sent by the sensor.
func ParseTemperature(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Event is one decoded message from a feed. A malformed event carries no
// reading but still proves the feed is alive.
type Event struct {
	Source      string
	Temperature *float64
	Alcohol     Classification
	Malformed   bool
	At          time.Time
}

func (e Event) HasTemperature() bool {
	return e.Temperature != nil
}

func (e Event) Classified() bool {
	return e.Alcohol.Resolved()
}
