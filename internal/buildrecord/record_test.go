package buildrecord

import (
	"testing"
	"time"
)

func TestSaveAndLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	rec := &Record{
		Status:       StatusCompleted,
		Image:        "registry.example.com/app:latest",
		BuiltImageID: "sha256:abc",
		StartedAt:    time.Now().Add(-time.Minute),
		FinishedAt:   time.Now(),
	}
	if err := Save(dir, rec); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != StatusCompleted || loaded.BuiltImageID != "sha256:abc" {
		t.Fatalf("got %+v", loaded)
	}
}

func TestLoad_MissingReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	rec, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != "" {
		t.Fatalf("expected zero-value record, got %+v", rec)
	}
}

func TestTiming_AddStartAndEndComputesDuration(t *testing.T) {
	dir := t.TempDir()
	tm := &Timing{}
	tm.AddStart("prebuild")
	time.Sleep(5 * time.Millisecond)
	tm.AddEnd("prebuild")

	if len(tm.Entries) != 1 || tm.Entries[0].Duration == "" {
		t.Fatalf("expected one closed entry, got %+v", tm.Entries)
	}

	if err := tm.Flush(dir); err != nil {
		t.Fatal(err)
	}
	reloaded, err := LoadTiming(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Entries) != 1 {
		t.Fatalf("expected timing to round-trip, got %+v", reloaded.Entries)
	}
}
