// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package schema validates decoded messages against named schema
// documents before they are accepted by the ingestion pipeline.
//
// A schema document is a JSON file mapping field names to
// go-playground/validator tag expressions plus a list of required
// fields:
//
//	{"required": ["lat", "lon"],
//	 "fields": {"lat": "latitude", "lon": "longitude"}}
//
// Default documents for the two pipeline schemas are embedded in the
// binary; a configured schema directory overrides them file by file.
// A schema whose document is missing or malformed is permanently
// invalid: every Validate call for it fails with the load error.
// Validation never panics.
package schema

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/mkrein/waypost/internal/logging"
)

// Schema names known to the pipeline.
const (
	MQTTMessage   = "mqtt_message"
	LocationEvent = "location_event"
)

//go:embed schemas/*.json
var embedded embed.FS

// singleton field validator, shared across all Validator instances.
// go-playground/validator caches compiled tag expressions internally.
var (
	fieldValidate     *validator.Validate
	fieldValidateOnce sync.Once
)

func getFieldValidator() *validator.Validate {
	fieldValidateOnce.Do(func() {
		fieldValidate = validator.New(validator.WithRequiredStructEnabled())
	})
	return fieldValidate
}

// document is a parsed schema file.
type document struct {
	Required []string          `json:"required"`
	Fields   map[string]string `json:"fields"`
}

// Validator holds the loaded schema documents for the pipeline. It is
// immutable after construction and safe for concurrent use.
type Validator struct {
	docs     map[string]*document
	loadErrs map[string]error
}

// NewValidator loads the pipeline schemas. Documents are read from dir
// when it is non-empty and the file exists there, otherwise from the
// embedded defaults. Load failures are logged once here and make the
// affected schema permanently invalid; construction itself never fails.
func NewValidator(dir string) *Validator {
	v := &Validator{
		docs:     make(map[string]*document),
		loadErrs: make(map[string]error),
	}

	for _, name := range []string{MQTTMessage, LocationEvent} {
		doc, err := loadDocument(dir, name)
		if err != nil {
			v.loadErrs[name] = err
			logging.Error().Err(err).Str("schema", name).Msg("schema load failed, schema marked invalid")
			continue
		}
		v.docs[name] = doc
	}

	return v
}

func loadDocument(dir, name string) (*document, error) {
	var (
		raw []byte
		err error
	)

	if dir != "" {
		path := filepath.Join(dir, name+".json")
		if _, statErr := os.Stat(path); statErr == nil {
			raw, err = os.ReadFile(path)
		} else {
			err = fmt.Errorf("schema file %s: %w", path, statErr)
		}
	} else {
		raw, err = embedded.ReadFile("schemas/" + name + ".json")
	}
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	return &doc, nil
}

// Validate checks obj against the named schema. It returns nil when the
// object passes, and an error describing every missing required field
// and failed rule otherwise. An unknown or invalid schema is itself a
// validation error.
func (v *Validator) Validate(name string, obj map[string]any) error {
	if loadErr, bad := v.loadErrs[name]; bad {
		return fmt.Errorf("schema %s unavailable: %w", name, loadErr)
	}

	doc, ok := v.docs[name]
	if !ok {
		return fmt.Errorf("unknown schema %s", name)
	}

	var problems []string

	for _, field := range doc.Required {
		if val, present := obj[field]; !present || val == nil {
			problems = append(problems, fmt.Sprintf("%s is required", field))
		}
	}

	fv := getFieldValidator()
	fields := make([]string, 0, len(doc.Fields))
	for field := range doc.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		val, present := obj[field]
		if !present || val == nil {
			// Absence is governed by the required list alone.
			continue
		}
		if err := fv.Var(val, doc.Fields[field]); err != nil {
			problems = append(problems, fmt.Sprintf("%s failed %s", field, doc.Fields[field]))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s: %s", name, strings.Join(problems, "; "))
	}
	return nil
}
