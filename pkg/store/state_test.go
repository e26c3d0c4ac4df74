package store

import (
	"context"
	"testing"
	"time"

	"github.com/fieldtrack/agent/pkg/collector"
)

func TestOperatorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	op, err := s.LoadOperator(ctx)
	if err != nil {
		t.Fatalf("LoadOperator failed: %v", err)
	}
	if op != nil {
		t.Fatalf("expected no operator in fresh store, got %+v", op)
	}

	saved := collector.Operator{ID: "op-7", Name: "J. Mwangi", EmployeeID: "E-12", Phone: "+254700000000"}
	if err := s.SaveOperator(ctx, saved); err != nil {
		t.Fatalf("SaveOperator failed: %v", err)
	}
	loaded, err := s.LoadOperator(ctx)
	if err != nil {
		t.Fatalf("LoadOperator failed: %v", err)
	}
	if loaded == nil || *loaded != saved {
		t.Fatalf("loaded operator = %+v, want %+v", loaded, saved)
	}

	if err := s.DeleteOperator(ctx); err != nil {
		t.Fatalf("DeleteOperator failed: %v", err)
	}
	loaded, err = s.LoadOperator(ctx)
	if err != nil {
		t.Fatalf("LoadOperator failed: %v", err)
	}
	if loaded != nil {
		t.Fatalf("operator still present after delete: %+v", loaded)
	}
}

func TestSessionRoundTripAcrossReopen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	record := SessionRecord{
		Operator:  collector.Operator{ID: "op-7", Name: "J. Mwangi"},
		Asset:     collector.Asset{ID: "V1", Name: "Lorry 1"},
		StartedAt: started,
	}
	if err := s.SaveSession(ctx, record); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	// Simulate a process restart.
	path := s.Path()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	reopened, err := OpenAt(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("session lost across reopen")
	}
	if loaded.Operator.ID != record.Operator.ID || loaded.Asset.ID != record.Asset.ID {
		t.Fatalf("loaded session = %+v, want %+v", loaded, record)
	}
	if !loaded.StartedAt.Equal(started) {
		t.Fatalf("StartedAt = %v, want %v", loaded.StartedAt, started)
	}
	now := started.Add(90 * time.Minute)
	if got := loaded.Elapsed(now); got != 90*time.Minute {
		t.Fatalf("Elapsed = %v, want 90m", got)
	}
}

func TestPersistedKeysAreIndependent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveOperator(ctx, collector.Operator{ID: "op-1", Name: "A"}); err != nil {
		t.Fatalf("SaveOperator failed: %v", err)
	}
	if err := s.SaveSession(ctx, SessionRecord{
		Operator:  collector.Operator{ID: "op-1"},
		Asset:     collector.Asset{ID: "V1"},
		StartedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := s.AppendPing(ctx, testPing(1)); err != nil {
		t.Fatalf("AppendPing failed: %v", err)
	}

	if err := s.DeleteSession(ctx); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if op, _ := s.LoadOperator(ctx); op == nil {
		t.Fatal("deleting session cleared the operator record")
	}
	if count, _ := s.PingCount(ctx); count != 1 {
		t.Fatal("deleting session cleared the ping queue")
	}

	if err := s.ClearPings(ctx); err != nil {
		t.Fatalf("ClearPings failed: %v", err)
	}
	if op, _ := s.LoadOperator(ctx); op == nil {
		t.Fatal("clearing the queue cleared the operator record")
	}
}
