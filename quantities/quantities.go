package quantities

import (
	"fmt"
	"sync"

	"nutrichat/models"
)

// Store holds per-serving quantity multipliers and per-component selection
// and expansion state for all currently-displayed messages. Keys are
// namespaced by message id so component ids reused across messages can never
// collide. State is process-local and reset with the session.
type Store struct {
	mu          sync.Mutex
	multipliers map[string]float64
	expanded    map[string]bool
}

func NewStore() *Store {
	return &Store{
		multipliers: make(map[string]float64),
		expanded:    make(map[string]bool),
	}
}

func servingKey(messageID, componentID, servingID string) string {
	return fmt.Sprintf("%s:%s:%s", messageID, componentID, servingID)
}

// Multiplier returns the user-chosen multiplier for a serving, defaulting to
// 1 when the user never set one.
func (s *Store) Multiplier(messageID, componentID, servingID string) float64 {
	v, ok := s.UserMultiplier(messageID, componentID, servingID)
	if !ok {
		return 1
	}
	return v
}

// UserMultiplier reports the stored multiplier and whether the user set one.
func (s *Store) UserMultiplier(messageID, componentID, servingID string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.multipliers[servingKey(messageID, componentID, servingID)]
	return v, ok
}

// SetMultiplier stores a user-chosen multiplier. Last write wins.
func (s *Store) SetMultiplier(messageID, componentID, servingID string, multiplier float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.multipliers[servingKey(messageID, componentID, servingID)] = multiplier
}

// ClearComponent drops all multipliers stored for one component, used when
// the component's matches are replaced by a re-search.
func (s *Store) ClearComponent(messageID, componentID string) {
	prefix := messageID + ":" + componentID + ":"
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.multipliers {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.multipliers, k)
		}
	}
}

// Expanded reports an expansion flag keyed by an arbitrary scoped id
// (food or component).
func (s *Store) Expanded(messageID, itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded[messageID+":"+itemID]
}

func (s *Store) SetExpanded(messageID, itemID string, expanded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded[messageID+":"+itemID] = expanded
}

// ToggleExpanded flips and returns the new value.
func (s *Store) ToggleExpanded(messageID, itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := messageID + ":" + itemID
	s.expanded[k] = !s.expanded[k]
	return s.expanded[k]
}

// EffectiveQuantity computes a serving's display quantity: base quantity
// times the user multiplier when set, otherwise times the AI-recommended
// scale (1 when absent).
func (s *Store) EffectiveQuantity(messageID, componentID string, serving *models.Serving) float64 {
	mult, ok := s.UserMultiplier(messageID, componentID, serving.ID)
	if !ok {
		mult = serving.AIRecommendedScale
		if mult == 0 {
			mult = 1
		}
	}
	return serving.BaseQuantity * mult
}

// EffectiveMultiplier returns the multiplier behind EffectiveQuantity.
func (s *Store) EffectiveMultiplier(messageID, componentID string, serving *models.Serving) float64 {
	mult, ok := s.UserMultiplier(messageID, componentID, serving.ID)
	if !ok {
		mult = serving.AIRecommendedScale
		if mult == 0 {
			mult = 1
		}
	}
	return mult
}

// EnsureSelection materializes the default serving selection for a match:
// if no serving is selected yet, the first serving becomes selected. The
// mutation is idempotent, repeated reads settle on the same serving.
func EnsureSelection(m *models.Match) {
	if m == nil || len(m.Servings) == 0 {
		return
	}
	if m.ServingByID(m.SelectedServingID) == nil {
		m.SelectedServingID = m.Servings[0].ID
	}
}
