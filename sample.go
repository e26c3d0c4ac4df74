package agent

import (
	"time"

	"github.com/fieldtrack/agent/pkg/collector"
)

// Sample is one raw positioning fix as produced by the acquisition layer.
// Immutable once captured; optional measurements are nil when the fix did
// not report them.
type Sample struct {
	Latitude   float64
	Longitude  float64
	AccuracyM  *float64
	SpeedMps   *float64
	HeadingDeg *float64
	Altitude   *float64
	CapturedAt time.Time
}

// SampleUpdate is what the tracker publishes to display subscribers for
// every raw fix, including the ones the accuracy filter rejected.
type SampleUpdate struct {
	Sample Sample
	// Accepted is false when the accuracy filter rejected the fix. Rejected
	// fixes are published but never delivered or queued, so a UI can show a
	// degraded-signal indicator.
	Accepted bool
}

func (s Sample) ping(assetID, operatorID string) collector.Ping {
	return collector.Ping{
		AssetID:    assetID,
		OperatorID: operatorID,
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		AccuracyM:  s.AccuracyM,
		SpeedMps:   s.SpeedMps,
		HeadingDeg: s.HeadingDeg,
		Altitude:   s.Altitude,
		CapturedAt: s.CapturedAt,
	}
}
