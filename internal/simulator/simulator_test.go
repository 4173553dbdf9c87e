// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package simulator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mkrein/waypost/internal/ingest"
	"github.com/mkrein/waypost/internal/logging"
	"github.com/mkrein/waypost/internal/models"
)

//nolint:gochecknoinits // quiet logging during tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// fakeProcessor records every payload handed to the pipeline.
type fakeProcessor struct {
	mu       sync.Mutex
	payloads []map[string]string
}

func (f *fakeProcessor) ProcessLocation(_ context.Context, _ ingest.Format, payload any) *models.LocationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fields, ok := payload.(map[string]string); ok {
		f.payloads = append(f.payloads, fields)
	}
	return &models.LocationEvent{}
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func writeTrack(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

const twoPointTrack = `{
	"device": "alicekey_simcar",
	"points": [
		{"lat": 48.2, "lon": 16.37, "time": "2026-08-30T10:00:00Z"},
		{"lat": 48.3, "lon": 16.38, "time": "2026-08-30T10:00:01Z"}
	]
}`

func TestReplayEmitsAllPoints(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "demo", twoPointTrack)

	proc := &fakeProcessor{}
	reg := NewRegistry(dir, proc)

	if err := reg.Start("demo"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for reg.Status("demo") != StateStopped {
		select {
		case <-deadline:
			t.Fatal("track did not finish")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if proc.count() != 2 {
		t.Fatalf("emitted %d points, want 2", proc.count())
	}

	proc.mu.Lock()
	first := proc.payloads[0]
	proc.mu.Unlock()
	if first["device_id"] != "alicekey_simcar" {
		t.Errorf("device_id = %q, want the track's identity string", first["device_id"])
	}
	if first["gps_latitude"] != "48.2" {
		t.Errorf("gps_latitude = %q, want 48.2", first["gps_latitude"])
	}
}

func TestStartRunningTrackIsNoOp(t *testing.T) {
	dir := t.TempDir()
	// Two points an hour apart: the replay stays in the inter-point
	// delay long enough to observe the running state.
	writeTrack(t, dir, "slow", `{
		"device": "alicekey_simcar",
		"points": [
			{"lat": 48.2, "lon": 16.37, "time": "2026-08-30T10:00:00Z"},
			{"lat": 48.3, "lon": 16.38, "time": "2026-08-30T11:00:00Z"}
		]
	}`)

	proc := &fakeProcessor{}
	reg := NewRegistry(dir, proc)

	if err := reg.Start("slow"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := reg.Start("slow"); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	// A second replay would have re-emitted the first point.
	if proc.count() != 1 {
		t.Fatalf("emitted %d points after double start, want 1", proc.count())
	}

	reg.Stop("slow")
}

func TestStopHaltsBetweenPoints(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "slow", `{
		"device": "alicekey_simcar",
		"points": [
			{"lat": 48.2, "lon": 16.37, "time": "2026-08-30T10:00:00Z"},
			{"lat": 48.3, "lon": 16.38, "time": "2026-08-30T11:00:00Z"}
		]
	}`)

	proc := &fakeProcessor{}
	reg := NewRegistry(dir, proc)

	if err := reg.Start("slow"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	reg.Stop("slow")

	deadline := time.After(time.Second)
	for reg.Status("slow") != StateStopped {
		select {
		case <-deadline:
			t.Fatal("stopped track did not reach Stopped state")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if proc.count() != 1 {
		t.Fatalf("emitted %d points, want only the one before Stop", proc.count())
	}
}

func TestStopCancelsLoadingTrack(t *testing.T) {
	reg := NewRegistry(t.TempDir(), &fakeProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	reg.mu.Lock()
	reg.tracks["slow"] = &track{name: "slow", state: StateLoading, cancel: cancel}
	reg.mu.Unlock()

	reg.Stop("slow")

	select {
	case <-ctx.Done():
	default:
		t.Fatal("track stuck in loading was not canceled by Stop")
	}
}

func TestStartMissingTrack(t *testing.T) {
	reg := NewRegistry(t.TempDir(), &fakeProcessor{})

	if err := reg.Start("ghost"); err == nil {
		t.Fatal("starting a missing track should error")
	}
	if reg.Status("ghost") != StateStopped {
		t.Errorf("state = %s after failed start, want stopped", reg.Status("ghost"))
	}
}

func TestTracksListing(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "alpha", twoPointTrack)
	writeTrack(t, dir, "beta", twoPointTrack)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(dir, &fakeProcessor{})
	names, err := reg.Tracks()
	if err != nil {
		t.Fatalf("Tracks failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v, want the two json tracks", names)
	}
}

func TestPointDelayClamping(t *testing.T) {
	tests := []struct {
		name    string
		current string
		next    string
		want    time.Duration
	}{
		{"sub-second delta", "2026-08-30T10:00:00Z", "2026-08-30T10:00:00.2Z", MinPointDelay},
		{"normal delta", "2026-08-30T10:00:00Z", "2026-08-30T10:00:30Z", 30 * time.Second},
		{"huge delta", "2026-08-30T10:00:00Z", "2026-08-31T10:00:00Z", MaxPointDelay},
		{"non-monotonic", "2026-08-30T11:00:00Z", "2026-08-30T10:00:00Z", MinPointDelay},
		{"unparsable", "yesterday", "2026-08-30T10:00:00Z", MinPointDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pointDelay(Point{Time: tt.current}, Point{Time: tt.next})
			if got != tt.want {
				t.Errorf("pointDelay = %v, want %v", got, tt.want)
			}
		})
	}
}
