package core

import "errors"

var (
	// ErrInvalidFrequency indicates a non-positive, non-finite or unparseable frequency.
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrInvalidDistance indicates a negative or non-finite path length.
	ErrInvalidDistance = errors.New("invalid distance")
	// ErrInvalidPosition indicates coordinates outside the WGS84 ranges.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrFrequencyMismatch indicates an attempt to link towers on different frequencies.
	ErrFrequencyMismatch = errors.New("frequency mismatch")
	// ErrSameTower indicates a link whose endpoints are the same tower.
	ErrSameTower = errors.New("link endpoints must be distinct towers")

	ErrTowerExists   = errors.New("tower already exists")
	ErrTowerNotFound = errors.New("tower not found")
	ErrEmptyTowerID  = errors.New("empty tower ID")
	ErrLinkExists    = errors.New("link already exists")
	ErrLinkNotFound  = errors.New("link not found")
	ErrEmptyLinkID   = errors.New("empty link ID")

	// ErrZoneReset indicates a zone computed before a global zone reset.
	ErrZoneReset = errors.New("zones were reset while the zone was resolving")
)
