package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// StateSnapshotVersion is the current snapshot layout.
const StateSnapshotVersion = 1

var (
	ErrUnsupportedSnapshotVersion = errors.New("snapshot: unsupported version")
	ErrInvalidSnapshot            = errors.New("snapshot: invalid")
)

// Reversion strength keys inside a snapshot.
const (
	StrengthKeyS1 = "s1"
	StrengthKeyM1 = "m1"
	StrengthKeyM5 = "m5"
	StrengthKeyH1 = "h1"
	StrengthKeyD1 = "d1"
)

// StateSnapshot is the flat, versioned persistence record of a SimulationState.
// Field names follow the engine_state.json layout so version-less files written
// by older generators can still be restored.
type StateSnapshot struct {
	Version           int                `json:"version"`
	Symbol            string             `json:"symbol,omitempty"`
	Price             float64            `json:"p"`
	D1Open            float64            `json:"d1_open"`
	H1Open            float64            `json:"h1_open"`
	M5Open            float64            `json:"m5_open"`
	M1Open            float64            `json:"m1_open"`
	ReversionStrength map[string]float64 `json:"reversion_strength"`
	GarchVariance     float64            `json:"garch_variance"`
	PrevReturn        float64            `json:"prev_return"`
	BoundaryTrend     int                `json:"boundary_trend"`
}

// NewStateSnapshot copies st field by field into a snapshot record.
func NewStateSnapshot(symbol string, st *SimulationState) *StateSnapshot {
	return &StateSnapshot{
		Version: StateSnapshotVersion,
		Symbol:  symbol,
		Price:   st.Price,
		D1Open:  st.Anchors.D1Open,
		H1Open:  st.Anchors.H1Open,
		M5Open:  st.Anchors.M5Open,
		M1Open:  st.Anchors.M1Open,
		ReversionStrength: map[string]float64{
			StrengthKeyS1: st.ReversionStrength.S1,
			StrengthKeyM1: st.ReversionStrength.M1,
			StrengthKeyM5: st.ReversionStrength.M5,
			StrengthKeyH1: st.ReversionStrength.H1,
			StrengthKeyD1: st.ReversionStrength.D1,
		},
		GarchVariance: st.GarchVariance,
		PrevReturn:    st.PrevReturn,
		BoundaryTrend: int(st.BoundaryTrend),
	}
}

// State validates the snapshot and converts it back into a SimulationState.
// Version 0 (no version field) is the legacy layout and is read as version 1.
func (s *StateSnapshot) State() (*SimulationState, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidSnapshot)
	}
	if s.Version != 0 && s.Version != StateSnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSnapshotVersion, s.Version)
	}

	prices := map[string]float64{"p": s.Price, "d1_open": s.D1Open, "h1_open": s.H1Open, "m5_open": s.M5Open, "m1_open": s.M1Open}
	for name, v := range prices {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidSnapshot, name, v)
		}
	}
	if math.IsNaN(s.GarchVariance) || math.IsInf(s.GarchVariance, 0) || s.GarchVariance < 0 {
		return nil, fmt.Errorf("%w: garch_variance %v", ErrInvalidSnapshot, s.GarchVariance)
	}
	if math.IsNaN(s.PrevReturn) || math.IsInf(s.PrevReturn, 0) {
		return nil, fmt.Errorf("%w: prev_return %v", ErrInvalidSnapshot, s.PrevReturn)
	}
	trend := Trend(s.BoundaryTrend)
	if !trend.Valid() {
		return nil, fmt.Errorf("%w: boundary_trend %d", ErrInvalidSnapshot, s.BoundaryTrend)
	}

	strength := func(key string) (float64, error) {
		v, ok := s.ReversionStrength[key]
		if !ok {
			return 0, fmt.Errorf("%w: reversion_strength.%s missing", ErrInvalidSnapshot, key)
		}
		if !(v > 0 && v < 1) {
			return 0, fmt.Errorf("%w: reversion_strength.%s out of (0,1): %v", ErrInvalidSnapshot, key, v)
		}
		return v, nil
	}
	var rs ReversionStrength
	var err error
	if rs.S1, err = strength(StrengthKeyS1); err != nil {
		return nil, err
	}
	if rs.M1, err = strength(StrengthKeyM1); err != nil {
		return nil, err
	}
	if rs.M5, err = strength(StrengthKeyM5); err != nil {
		return nil, err
	}
	if rs.H1, err = strength(StrengthKeyH1); err != nil {
		return nil, err
	}
	if rs.D1, err = strength(StrengthKeyD1); err != nil {
		return nil, err
	}

	return &SimulationState{
		Price: s.Price,
		Anchors: Anchors{
			D1Open: s.D1Open,
			H1Open: s.H1Open,
			M5Open: s.M5Open,
			M1Open: s.M1Open,
		},
		ReversionStrength: rs,
		GarchVariance:     s.GarchVariance,
		PrevReturn:        s.PrevReturn,
		BoundaryTrend:     trend,
	}, nil
}

// EncodeStateSnapshot serializes a snapshot as JSON. Float64 values round-trip exactly.
func EncodeStateSnapshot(s *StateSnapshot) ([]byte, error) {
	if s.Version == 0 {
		s.Version = StateSnapshotVersion
	}
	return json.Marshal(s)
}

// DecodeStateSnapshot parses and validates a JSON snapshot.
func DecodeStateSnapshot(b []byte) (*StateSnapshot, error) {
	var s StateSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if _, err := s.State(); err != nil {
		return nil, err
	}
	if s.Version == 0 {
		s.Version = StateSnapshotVersion
	}
	return &s, nil
}
