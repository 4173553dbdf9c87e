// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mkrein/waypost/internal/directory"
	"github.com/mkrein/waypost/internal/logging"
	"github.com/mkrein/waypost/internal/metrics"
	"github.com/mkrein/waypost/internal/models"
	"github.com/mkrein/waypost/internal/schema"
)

// PositionStore persists accepted events.
type PositionStore interface {
	InsertPosition(ctx context.Context, event *models.LocationEvent) error
}

// Broadcaster fans accepted events out to live subscribers.
type Broadcaster interface {
	Publish(event *models.LocationEvent) error
}

// Ingester orchestrates one ingestion call: refresh the directory,
// decode via the format's adapter, validate the normalized event, then
// persist and broadcast concurrently.
type Ingester struct {
	dir       *directory.Directory
	validator *schema.Validator
	store     PositionStore
	hub       Broadcaster
	adapters  map[Format]Adapter
	breaker   *gobreaker.CircuitBreaker[any]
}

// NewIngester wires the pipeline. Position inserts run behind a circuit
// breaker so a down store trips fast instead of stalling every producer.
func NewIngester(dir *directory.Directory, validator *schema.Validator, store PositionStore, hub Broadcaster) *Ingester {
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "position-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Ingester{
		dir:       dir,
		validator: validator,
		store:     store,
		hub:       hub,
		adapters: map[Format]Adapter{
			FormatGPX:      &gpxAdapter{dir: dir},
			FormatLocative: &locativeAdapter{dir: dir},
			FormatMQTT:     &mqttAdapter{dir: dir, validator: validator},
		},
		breaker: breaker,
	}
}

// ProcessLocation runs one report through the pipeline. Every failure,
// whatever the step, is logged with the format name and yields nil; the
// caller never sees an error or a panic. Replaying a payload re-resolves
// everything fresh, there is no dedup by content.
//
// The pipeline runs to completion once entered: a webhook client
// dropping its connection must not abort a persist that the broadcast
// leg already committed to, so the caller's cancellation is severed
// here.
func (in *Ingester) ProcessLocation(ctx context.Context, format Format, payload any) (event *models.LocationEvent) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	defer func() {
		metrics.IngestDuration.WithLabelValues(string(format)).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			logging.Error().
				Str("format", string(format)).
				Interface("panic", r).
				Msg("ingestion panicked, report dropped")
			metrics.IngestEventsTotal.WithLabelValues(string(format), string(KindStorage)).Inc()
			event = nil
		}
	}()

	ev, err := in.process(ctx, format, payload)
	if err != nil {
		kind := kindOf(err)
		in.logFailure(format, kind, err)
		metrics.IngestEventsTotal.WithLabelValues(string(format), string(kind)).Inc()
		return nil
	}

	metrics.IngestEventsTotal.WithLabelValues(string(format), "accepted").Inc()
	return ev
}

func (in *Ingester) process(ctx context.Context, format Format, payload any) (*models.LocationEvent, error) {
	if err := in.dir.Refresh(ctx); err != nil {
		return nil, &Error{Kind: KindStorage, Err: err}
	}

	adapter, ok := in.adapters[format]
	if !ok {
		return nil, decodeErr("unknown format %q", format)
	}

	ev, err := adapter.Decode(ctx, payload)
	if err != nil {
		return nil, err
	}

	if err := in.validateEvent(ev); err != nil {
		return nil, err
	}

	// Persist and broadcast are concurrent siblings: both always run,
	// both are awaited, and a failure in one never cancels the other.
	var (
		wg           sync.WaitGroup
		persistErr   error
		broadcastErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, persistErr = in.breaker.Execute(func() (any, error) {
			return nil, in.store.InsertPosition(ctx, ev)
		})
	}()
	go func() {
		defer wg.Done()
		broadcastErr = in.hub.Publish(ev)
	}()
	wg.Wait()

	if persistErr != nil {
		return nil, &Error{Kind: KindStorage, Err: persistErr}
	}
	if broadcastErr != nil {
		return nil, &Error{Kind: KindBroadcast, Err: broadcastErr}
	}
	return ev, nil
}

// validateEvent is the last-chance guard before persistence: the range
// invariant plus the location_event schema.
func (in *Ingester) validateEvent(ev *models.LocationEvent) error {
	if !ev.InRange() {
		return &Error{Kind: KindValidation, Err: fmt.Errorf("coordinates (%v, %v) out of range", ev.LocLat, ev.LocLon)}
	}

	obj := map[string]any{
		"device_id":     ev.DeviceID,
		"loc_timestamp": ev.LocTimestamp,
		"loc_lat":       ev.LocLat,
		"loc_lon":       ev.LocLon,
	}
	if ev.LocType != nil {
		obj["loc_type"] = *ev.LocType
	}
	if err := in.validator.Validate(schema.LocationEvent, obj); err != nil {
		return &Error{Kind: KindValidation, Err: err}
	}
	return nil
}

// logFailure applies the severity policy: unknown credentials are a
// rejection, not a server fault, and stay quiet.
func (in *Ingester) logFailure(format Format, kind Kind, err error) {
	evt := logging.Warn()
	if kind == KindUnknownCredential {
		evt = logging.Debug()
	}
	evt.Str("format", string(format)).
		Str("kind", string(kind)).
		Err(err).
		Msg("location report dropped")
}
