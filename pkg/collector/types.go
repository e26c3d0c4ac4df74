package collector

import "time"

// Ping is one positioning fix bound to the asset and operator it was captured
// for. Optional measurements stay pointers so "not reported" survives the
// round trip through persistence and the wire.
type Ping struct {
	AssetID    string    `json:"assetId"`
	OperatorID string    `json:"operatorId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  *float64  `json:"accuracyMeters,omitempty"`
	SpeedMps   *float64  `json:"speedMps,omitempty"`
	HeadingDeg *float64  `json:"headingDeg,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

type batchRequest struct {
	Samples []Ping `json:"samples"`
}

// Asset is the vehicle or equipment assigned for a shift.
type Asset struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Operator is the registered person using the agent. Created once via
// Register and never mutated afterwards, only removed wholesale.
type Operator struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EmployeeID string `json:"employeeId,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// RegisterRequest is the operator profile sent on first-time registration.
type RegisterRequest struct {
	Name       string `json:"name"`
	EmployeeID string `json:"employeeId,omitempty"`
	Phone      string `json:"phone,omitempty"`
	DeviceID   string `json:"deviceId"`
}

// ShiftStatus mirrors the server-authoritative shift state. The agent never
// decides shift membership on its own; it only reflects what the collector
// reports here.
type ShiftStatus struct {
	OnShift        bool       `json:"onShift"`
	Asset          *Asset     `json:"asset"`
	ShiftStartedAt *time.Time `json:"shiftStartedAt"`
}
