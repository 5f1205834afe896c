// Package idfactory generates job identifiers. The manager treats it as
// the opaque IdFactory the specification describes: callers choose a Kind
// once at Manager construction and every subsequent Publish call draws a
// fresh id from it.
package idfactory

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind selects the UUID version a Factory produces.
type Kind string

const (
	// V1 produces time-ordered (Gregorian-epoch) UUIDs.
	V1 Kind = "v1"
	// V4 produces fully random UUIDs. This is the default.
	V4 Kind = "v4"
)

// Factory generates opaque unique identifiers for jobs.
type Factory struct {
	kind Kind
}

// New constructs a Factory for the given Kind. An empty Kind defaults to V4.
func New(kind Kind) *Factory {
	if kind == "" {
		kind = V4
	}
	return &Factory{kind: kind}
}

// NewID returns a fresh globally unique identifier.
func (f *Factory) NewID() (string, error) {
	switch f.kind {
	case V1:
		id, err := uuid.NewUUID()
		if err != nil {
			return "", fmt.Errorf("idfactory: generate v1: %w", err)
		}
		return id.String(), nil
	case V4:
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("idfactory: generate v4: %w", err)
		}
		return id.String(), nil
	default:
		return "", fmt.Errorf("idfactory: unsupported kind %q", f.kind)
	}
}
