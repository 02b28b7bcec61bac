package planner

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/linkplanner/core"
	"github.com/signalsfoundry/linkplanner/internal/logging"
)

// SelectionOutcome describes what a tower click did to the pending slot.
type SelectionOutcome int

const (
	// SelectionMarked means the tower is now pending.
	SelectionMarked SelectionOutcome = iota
	// SelectionCleared means the pending tower was clicked again.
	SelectionCleared
	// SelectionLinked means a link now joins the pending tower and this one.
	SelectionLinked
	// SelectionMismatch means the towers differ in frequency; no link.
	SelectionMismatch
)

func (o SelectionOutcome) String() string {
	switch o {
	case SelectionMarked:
		return "selected"
	case SelectionCleared:
		return "deselected"
	case SelectionLinked:
		return "linked"
	case SelectionMismatch:
		return "mismatch"
	default:
		return fmt.Sprintf("SelectionOutcome(%d)", int(o))
	}
}

// SelectResult is returned by SelectOrLinkTower. Link is set only for
// SelectionLinked.
type SelectResult struct {
	Outcome SelectionOutcome
	Link    *core.Link
}

// Pending returns the pending tower ID, if any.
func (s *State) Pending() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending, s.pending != ""
}

// SelectOrLinkTower advances the two-state selection machine:
//
//	Idle       + click t          -> OneSelected(t)            SelectionMarked
//	OneSelected(t) + click t      -> Idle                      SelectionCleared
//	OneSelected(p) + click t, f≠  -> Idle, ErrFrequencyMismatch SelectionMismatch
//	OneSelected(p) + click t, f=  -> Idle, link p-t            SelectionLinked
//
// Clicking an already-linked pair returns the existing link. An unknown
// tower fails with ErrTowerNotFound and leaves the selection untouched.
func (s *State) SelectOrLinkTower(ctx context.Context, towerID string) (SelectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.kb.GetTower(towerID)
	if !ok {
		return SelectResult{}, fmt.Errorf("%w: %q", ErrTowerNotFound, towerID)
	}

	if s.pending == "" {
		s.pending = towerID
		s.log.Debug(ctx, "tower selected", logging.String("tower_id", towerID))
		return SelectResult{Outcome: SelectionMarked}, nil
	}

	pendingID := s.pending
	s.pending = ""

	if pendingID == towerID {
		s.log.Debug(ctx, "tower deselected", logging.String("tower_id", towerID))
		return SelectResult{Outcome: SelectionCleared}, nil
	}

	p, ok := s.kb.GetTower(pendingID)
	if !ok {
		// The pending tower is cleared on removal, so this only happens if
		// the KB was mutated behind the state's back. Start over from t.
		s.pending = towerID
		return SelectResult{Outcome: SelectionMarked}, nil
	}

	if p.FrequencyGHz != t.FrequencyGHz {
		s.log.Info(ctx, "link rejected: frequency mismatch",
			logging.String("from_tower_id", p.ID),
			logging.String("to_tower_id", t.ID),
			logging.Float("from_frequency_ghz", p.FrequencyGHz),
			logging.Float("to_frequency_ghz", t.FrequencyGHz),
		)
		return SelectResult{Outcome: SelectionMismatch}, fmt.Errorf("%w: %v GHz vs %v GHz",
			ErrFrequencyMismatch, p.FrequencyGHz, t.FrequencyGHz)
	}

	if existing, ok := s.kb.LinkBetween(p.ID, t.ID); ok {
		return SelectResult{Outcome: SelectionLinked, Link: &existing}, nil
	}

	link := core.Link{
		ID:           s.newID(),
		FromTowerID:  p.ID,
		ToTowerID:    t.ID,
		FrequencyGHz: p.FrequencyGHz,
	}
	if err := s.kb.AddLink(link); err != nil {
		return SelectResult{}, err
	}
	stored, _ := s.kb.GetLink(link.ID)
	s.updateMetricsLocked()

	s.log.Info(ctx, "link created",
		logging.String("link_id", link.ID),
		logging.String("from_tower_id", p.ID),
		logging.String("to_tower_id", t.ID),
		logging.Float("frequency_ghz", link.FrequencyGHz),
	)
	return SelectResult{Outcome: SelectionLinked, Link: &stored}, nil
}
