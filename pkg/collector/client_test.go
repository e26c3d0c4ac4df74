package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func samplePing() Ping {
	accuracy := 8.0
	return Ping{
		AssetID:    "V1",
		OperatorID: "op-1",
		Latitude:   -1.2921,
		Longitude:  36.8219,
		AccuracyM:  &accuracy,
		CapturedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestSendPing(t *testing.T) {
	var got Ping
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/locations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode ping body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	if err := client.SendPing(context.Background(), samplePing()); err != nil {
		t.Fatalf("SendPing failed: %v", err)
	}
	if got.AssetID != "V1" || got.OperatorID != "op-1" {
		t.Fatalf("delivered ping identifiers = %q/%q", got.AssetID, got.OperatorID)
	}
	if got.AccuracyM == nil || *got.AccuracyM != 8.0 {
		t.Fatalf("accuracy did not survive the wire: %v", got.AccuracyM)
	}
}

func TestSendPingNonSuccessStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collector unavailable", http.StatusServiceUnavailable)
	}))
	if err := client.SendPing(context.Background(), samplePing()); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestSendPingTimeoutIsFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	short, err := NewClientWithOptions(client.BaseURL(), Options{SingleTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClientWithOptions failed: %v", err)
	}
	if err := short.SendPing(context.Background(), samplePing()); err == nil {
		t.Fatal("expected timeout to surface as a failure")
	}
}

func TestSendBatch(t *testing.T) {
	var body struct {
		Samples []Ping `json:"samples"`
	}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/locations/batch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode batch body: %v", err)
		}
	}))

	pings := []Ping{samplePing(), samplePing(), samplePing()}
	if err := client.SendBatch(context.Background(), pings); err != nil {
		t.Fatalf("SendBatch failed: %v", err)
	}
	if len(body.Samples) != 3 {
		t.Fatalf("batch carried %d samples, want 3", len(body.Samples))
	}
}

func TestSendBatchEmptyIsNoop(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty batch should not hit the network")
	}))
	if err := client.SendBatch(context.Background(), nil); err != nil {
		t.Fatalf("SendBatch(nil) failed: %v", err)
	}
}

func TestRegister(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode register body: %v", err)
		}
		if req.DeviceID == "" {
			t.Error("register request missing device id")
		}
		json.NewEncoder(w).Encode(Operator{ID: "op-42", Name: req.Name})
	}))

	operator, err := client.Register(context.Background(), RegisterRequest{Name: "J. Mwangi", DeviceID: "dev-1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if operator.ID != "op-42" || operator.Name != "J. Mwangi" {
		t.Fatalf("registered operator = %+v", operator)
	}
}

func TestRegisterFailureSurfaces(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "duplicate phone", http.StatusConflict)
	}))
	if _, err := client.Register(context.Background(), RegisterRequest{Name: "J", DeviceID: "dev-1"}); err == nil {
		t.Fatal("expected registration failure to surface")
	}
}

func TestShiftStatus(t *testing.T) {
	started := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shift-status/op-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ShiftStatus{
			OnShift:        true,
			Asset:          &Asset{ID: "V1"},
			ShiftStartedAt: &started,
		})
	}))

	status, err := client.ShiftStatus(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("ShiftStatus failed: %v", err)
	}
	if !status.OnShift || status.Asset == nil || status.Asset.ID != "V1" {
		t.Fatalf("status = %+v", status)
	}
	if status.ShiftStartedAt == nil || !status.ShiftStartedAt.Equal(started) {
		t.Fatalf("shift start = %v, want %v", status.ShiftStartedAt, started)
	}
}

func TestShiftStatusOffShift(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ShiftStatus{OnShift: false})
	}))
	status, err := client.ShiftStatus(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("ShiftStatus failed: %v", err)
	}
	if status.OnShift || status.Asset != nil {
		t.Fatalf("status = %+v, want off-shift with no asset", status)
	}
}

func TestReachable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	if !client.Reachable(context.Background()) {
		t.Fatal("any response should count as reachable")
	}

	down, err := NewClient("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if down.Reachable(context.Background()) {
		t.Fatal("connection refused should count as unreachable")
	}
}
