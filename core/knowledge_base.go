package core

import (
	"fmt"
	"sort"
	"sync"
)

// KnowledgeBase stores towers and the links between them and keeps the
// link invariant: every stored link joins two existing, distinct towers
// whose current frequencies are equal.
//
// All methods are safe for concurrent use. Mutations that cascade (tower
// removal, frequency edits) happen under a single lock acquisition.
type KnowledgeBase struct {
	mu sync.RWMutex

	towers       map[string]*Tower
	links        map[string]*Link
	linksByTower map[string]map[string]*Link
	linksByPair  map[string]*Link

	// seq orders entities by insertion so list views are stable.
	seq uint64
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		towers:       make(map[string]*Tower),
		links:        make(map[string]*Link),
		linksByTower: make(map[string]map[string]*Link),
		linksByPair:  make(map[string]*Link),
	}
}

//
// ---------- Towers ----------
//

// AddTower validates and stores a tower. The caller assigns the ID.
func (kb *KnowledgeBase) AddTower(t Tower) error {
	if t.ID == "" {
		return fmt.Errorf("%w", ErrEmptyTowerID)
	}
	if err := ValidateFrequency(t.FrequencyGHz); err != nil {
		return err
	}
	if err := t.Position.Validate(); err != nil {
		return err
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.towers[t.ID]; exists {
		return fmt.Errorf("%w: %q", ErrTowerExists, t.ID)
	}
	kb.seq++
	t.seq = kb.seq
	kb.towers[t.ID] = &t
	return nil
}

// GetTower returns a copy of the tower with the given ID.
func (kb *KnowledgeBase) GetTower(id string) (Tower, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	t, ok := kb.towers[id]
	if !ok {
		return Tower{}, false
	}
	return *t, true
}

// ListTowers returns copies of all towers in creation order.
func (kb *KnowledgeBase) ListTowers() []Tower {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]Tower, 0, len(kb.towers))
	for _, t := range kb.towers {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// SetTowerFrequency updates a tower's frequency and removes every link
// touching it whose endpoints no longer share a frequency. The removed
// links are returned in creation order.
func (kb *KnowledgeBase) SetTowerFrequency(id string, frequencyGHz float64) ([]Link, error) {
	if err := ValidateFrequency(frequencyGHz); err != nil {
		return nil, err
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	t, ok := kb.towers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTowerNotFound, id)
	}
	t.FrequencyGHz = frequencyGHz

	var removed []Link
	for linkID, link := range kb.linksByTower[id] {
		peer, ok := kb.towers[link.Other(id)]
		if ok && peer.FrequencyGHz == t.FrequencyGHz {
			continue
		}
		removed = append(removed, *link)
		kb.deleteLinkLocked(linkID)
	}
	sortLinks(removed)
	return removed, nil
}

// DeleteTower removes a tower and every link that references it. The
// removed links are returned in creation order.
func (kb *KnowledgeBase) DeleteTower(id string) ([]Link, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, ok := kb.towers[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrTowerNotFound, id)
	}

	var removed []Link
	for linkID, link := range kb.linksByTower[id] {
		removed = append(removed, *link)
		kb.deleteLinkLocked(linkID)
	}
	delete(kb.linksByTower, id)
	delete(kb.towers, id)
	sortLinks(removed)
	return removed, nil
}

//
// ---------- Links ----------
//

// AddLink inserts a link after checking that both endpoints exist, are
// distinct, currently share a frequency and are not already linked.
func (kb *KnowledgeBase) AddLink(link Link) error {
	if link.ID == "" {
		return fmt.Errorf("%w", ErrEmptyLinkID)
	}
	if link.FromTowerID == link.ToTowerID {
		return fmt.Errorf("%w: %q", ErrSameTower, link.FromTowerID)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.links[link.ID]; exists {
		return fmt.Errorf("%w: %q", ErrLinkExists, link.ID)
	}
	from, ok := kb.towers[link.FromTowerID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTowerNotFound, link.FromTowerID)
	}
	to, ok := kb.towers[link.ToTowerID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTowerNotFound, link.ToTowerID)
	}
	if from.FrequencyGHz != to.FrequencyGHz {
		return fmt.Errorf("%w: %v GHz vs %v GHz", ErrFrequencyMismatch, from.FrequencyGHz, to.FrequencyGHz)
	}
	key := pairKey(link.FromTowerID, link.ToTowerID)
	if existing, ok := kb.linksByPair[key]; ok {
		return fmt.Errorf("%w: towers already joined by %q", ErrLinkExists, existing.ID)
	}

	if link.FrequencyGHz == 0 {
		link.FrequencyGHz = from.FrequencyGHz
	}
	kb.seq++
	link.seq = kb.seq

	stored := &link
	kb.links[link.ID] = stored
	kb.linksByPair[key] = stored
	kb.indexLinkLocked(link.FromTowerID, stored)
	kb.indexLinkLocked(link.ToTowerID, stored)
	return nil
}

// GetLink returns a copy of the link with the given ID.
func (kb *KnowledgeBase) GetLink(id string) (Link, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	l, ok := kb.links[id]
	if !ok {
		return Link{}, false
	}
	return *l, true
}

// LinkBetween returns the link joining towers a and b in either direction.
func (kb *KnowledgeBase) LinkBetween(a, b string) (Link, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	l, ok := kb.linksByPair[pairKey(a, b)]
	if !ok {
		return Link{}, false
	}
	return *l, true
}

// LinkEndpoints returns the link together with copies of both endpoint
// towers, read under one lock so the three are mutually consistent.
func (kb *KnowledgeBase) LinkEndpoints(id string) (Link, Tower, Tower, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	l, ok := kb.links[id]
	if !ok {
		return Link{}, Tower{}, Tower{}, fmt.Errorf("%w: %q", ErrLinkNotFound, id)
	}
	from, okFrom := kb.towers[l.FromTowerID]
	to, okTo := kb.towers[l.ToTowerID]
	if !okFrom || !okTo {
		// Unreachable while the invariant holds.
		return Link{}, Tower{}, Tower{}, fmt.Errorf("%w: link %q has a dangling endpoint", ErrTowerNotFound, id)
	}
	return *l, *from, *to, nil
}

// ListLinks returns copies of all links in creation order.
func (kb *KnowledgeBase) ListLinks() []Link {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]Link, 0, len(kb.links))
	for _, l := range kb.links {
		out = append(out, *l)
	}
	sortLinks(out)
	return out
}

// LinksForTower returns the links touching towerID in creation order.
func (kb *KnowledgeBase) LinksForTower(towerID string) []Link {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]Link, 0, len(kb.linksByTower[towerID]))
	for _, l := range kb.linksByTower[towerID] {
		out = append(out, *l)
	}
	sortLinks(out)
	return out
}

// DeleteLink removes a single link.
func (kb *KnowledgeBase) DeleteLink(id string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, ok := kb.links[id]; !ok {
		return fmt.Errorf("%w: %q", ErrLinkNotFound, id)
	}
	kb.deleteLinkLocked(id)
	return nil
}

// Counts returns the number of towers and links.
func (kb *KnowledgeBase) Counts() (towers, links int) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.towers), len(kb.links)
}

// Clear removes all towers and links.
func (kb *KnowledgeBase) Clear() {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	kb.towers = make(map[string]*Tower)
	kb.links = make(map[string]*Link)
	kb.linksByTower = make(map[string]map[string]*Link)
	kb.linksByPair = make(map[string]*Link)
}

// CheckInvariants verifies that every link joins two existing, distinct
// towers with equal current frequencies and that the adjacency indexes
// agree with the link table.
func (kb *KnowledgeBase) CheckInvariants() error {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	for id, l := range kb.links {
		from, ok := kb.towers[l.FromTowerID]
		if !ok {
			return fmt.Errorf("link %q: %w: %q", id, ErrTowerNotFound, l.FromTowerID)
		}
		to, ok := kb.towers[l.ToTowerID]
		if !ok {
			return fmt.Errorf("link %q: %w: %q", id, ErrTowerNotFound, l.ToTowerID)
		}
		if from.ID == to.ID {
			return fmt.Errorf("link %q: %w", id, ErrSameTower)
		}
		if from.FrequencyGHz != to.FrequencyGHz {
			return fmt.Errorf("link %q: %w: %v GHz vs %v GHz", id, ErrFrequencyMismatch, from.FrequencyGHz, to.FrequencyGHz)
		}
		if kb.linksByTower[l.FromTowerID][id] == nil || kb.linksByTower[l.ToTowerID][id] == nil {
			return fmt.Errorf("link %q missing from tower adjacency", id)
		}
		if kb.linksByPair[pairKey(l.FromTowerID, l.ToTowerID)] != l {
			return fmt.Errorf("link %q missing from pair index", id)
		}
	}
	for towerID, byID := range kb.linksByTower {
		for id := range byID {
			if _, ok := kb.links[id]; !ok {
				return fmt.Errorf("tower %q adjacency references removed link %q", towerID, id)
			}
		}
	}
	return nil
}

func (kb *KnowledgeBase) indexLinkLocked(towerID string, link *Link) {
	m := kb.linksByTower[towerID]
	if m == nil {
		m = make(map[string]*Link)
		kb.linksByTower[towerID] = m
	}
	m[link.ID] = link
}

func (kb *KnowledgeBase) deleteLinkLocked(id string) {
	link, ok := kb.links[id]
	if !ok {
		return
	}
	for _, towerID := range []string{link.FromTowerID, link.ToTowerID} {
		if m := kb.linksByTower[towerID]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(kb.linksByTower, towerID)
			}
		}
	}
	delete(kb.linksByPair, pairKey(link.FromTowerID, link.ToTowerID))
	delete(kb.links, id)
}

func sortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool { return links[i].seq < links[j].seq })
}
