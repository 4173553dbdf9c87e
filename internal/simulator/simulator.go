// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package simulator replays recorded track files as synthetic GPX
// reports through the regular ingestion entry point, for demos and
// testing. Replayed points share every validation and rejection rule of
// real reports.
package simulator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/mkrein/waypost/internal/ingest"
	"github.com/mkrein/waypost/internal/logging"
	"github.com/mkrein/waypost/internal/metrics"
	"github.com/mkrein/waypost/internal/models"
)

// State of one track replay.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StateStopped State = "stopped"
)

// Inter-point delays are derived from recorded timestamps and clamped
// so bad data cannot stall a replay for hours or flood the pipeline.
const (
	MinPointDelay = time.Second
	MaxPointDelay = 15 * time.Minute
)

// Point is one recorded fix in a track file.
type Point struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Time string  `json:"time"`
}

// trackFile is the on-disk shape: the device field is a '_'-divided
// identity string, exactly what the GPX webhook carries.
type trackFile struct {
	Device string  `json:"device"`
	Points []Point `json:"points"`
}

// Processor is the ingestion entry point replays feed.
type Processor interface {
	ProcessLocation(ctx context.Context, format ingest.Format, payload any) *models.LocationEvent
}

// track is one in-memory replay, at most one per file.
type track struct {
	name   string
	state  State
	cancel context.CancelFunc
}

// Registry maps track files in a directory to at most one active
// replay each.
type Registry struct {
	dir       string
	processor Processor

	mu     sync.Mutex
	tracks map[string]*track
}

// NewRegistry creates a registry over the track directory.
func NewRegistry(dir string, processor Processor) *Registry {
	return &Registry{
		dir:       dir,
		processor: processor,
		tracks:    make(map[string]*track),
	}
}

// Tracks lists the replayable track names (file base names without the
// .json extension) found in the directory.
func (r *Registry) Tracks() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read track directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names, nil
}

// Status returns the replay state of the named track.
func (r *Registry) Status(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tracks[name]; ok {
		return t.state
	}
	return StateIdle
}

// Start begins replaying the named track. Starting a track that is
// already playing is a no-op. The replay outlives the caller; it stops
// when the track is exhausted, Stop is called, or the registry shuts
// down.
func (r *Registry) Start(name string) error {
	r.mu.Lock()
	if t, ok := r.tracks[name]; ok && (t.state == StateLoading || t.state == StatePlaying) {
		r.mu.Unlock()
		return nil
	}

	trackCtx, cancel := context.WithCancel(context.Background())
	t := &track{name: name, state: StateLoading, cancel: cancel}
	r.tracks[name] = t
	r.mu.Unlock()

	file, err := r.load(name)
	if err != nil {
		r.setState(name, StateStopped)
		cancel()
		return err
	}

	r.setState(name, StatePlaying)
	metrics.SimulatorTracksPlaying.Inc()
	logging.Info().Str("track", name).Int("points", len(file.Points)).Msg("track replay started")

	go r.play(trackCtx, t, file)
	return nil
}

// Stop halts a replay between points. Stopping an idle track is a
// no-op.
func (r *Registry) Stop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tracks[name]; ok && (t.state == StateLoading || t.state == StatePlaying) {
		t.cancel()
	}
}

// StopAll halts every active replay.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tracks {
		if t.state == StatePlaying || t.state == StateLoading {
			t.cancel()
		}
	}
}

// Serve blocks until ctx is canceled, then halts all replays. This is
// the suture service surface.
func (r *Registry) Serve(ctx context.Context) error {
	<-ctx.Done()
	r.StopAll()
	logging.Info().Str("component", "track-simulator").Msg("track simulator stopped")
	return ctx.Err()
}

// String names the service in supervisor logs.
func (r *Registry) String() string {
	return "track-simulator"
}

func (r *Registry) load(name string) (*trackFile, error) {
	path := filepath.Join(r.dir, name+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track %s: %w", name, err)
	}

	var file trackFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse track %s: %w", name, err)
	}
	if file.Device == "" || len(file.Points) == 0 {
		return nil, fmt.Errorf("track %s has no device or no points", name)
	}
	return &file, nil
}

// play emits one point, sleeps the recorded delta to the next point,
// and stops when the track is exhausted or canceled.
func (r *Registry) play(ctx context.Context, t *track, file *trackFile) {
	defer func() {
		metrics.SimulatorTracksPlaying.Dec()
		r.setState(t.name, StateStopped)
		logging.Info().Str("track", t.name).Msg("track replay finished")
	}()

	for i, point := range file.Points {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.emit(ctx, file.Device, point)

		if i == len(file.Points)-1 {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(pointDelay(point, file.Points[i+1])):
		}
	}
}

func (r *Registry) emit(ctx context.Context, device string, point Point) {
	payload := map[string]string{
		"device_id":     device,
		"gps_latitude":  fmt.Sprintf("%g", point.Lat),
		"gps_longitude": fmt.Sprintf("%g", point.Lon),
		"gps_time":      point.Time,
	}
	if r.processor.ProcessLocation(ctx, ingest.FormatGPX, payload) != nil {
		metrics.SimulatorPointsEmitted.Inc()
	}
}

func (r *Registry) setState(name string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tracks[name]; ok {
		t.state = state
	}
}

// pointDelay derives the pause between two recorded points from their
// timestamps, clamped to [MinPointDelay, MaxPointDelay]. Unparsable or
// non-monotonic timestamps fall back to the minimum.
func pointDelay(current, next Point) time.Duration {
	curTime, errCur := time.Parse(time.RFC3339, current.Time)
	nextTime, errNext := time.Parse(time.RFC3339, next.Time)
	if errCur != nil || errNext != nil {
		return MinPointDelay
	}

	delta := nextTime.Sub(curTime)
	if delta < MinPointDelay {
		return MinPointDelay
	}
	if delta > MaxPointDelay {
		return MaxPointDelay
	}
	return delta
}
