package citylist

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Manager owns the ordered city list and the current selection. Every
// mutation persists immediately and hands a copy of the new list to the
// change listener so the weather cache can prefetch.
type Manager struct {
	store  *Store
	logger *slog.Logger

	mu       sync.Mutex
	cities   []City
	selected string
	onChange func([]City)
}

func NewManager(store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{store: store, logger: logger}
	m.cities = store.Load()
	m.selected = store.LoadSelection()
	if !m.hasLocked(m.selected) {
		m.selected = ""
		if len(m.cities) > 0 {
			m.selected = m.cities[0].ID
		}
	}
	return m
}

// SetOnChange registers a listener invoked with a copy of the list after
// every list mutation.
func (m *Manager) SetOnChange(fn func([]City)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *Manager) Cities() []City {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]City(nil), m.cities...)
}

func (m *Manager) Get(id string) (City, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cities {
		if c.ID == id {
			return c, true
		}
	}
	return City{}, false
}

// Add appends a city to the end of the list. Adding an already saved city
// is a no-op. The first city on an empty list becomes the selection.
func (m *Manager) Add(city City) error {
	city.Name = strings.TrimSpace(city.Name)
	if city.ID == "" || city.Name == "" {
		return fmt.Errorf("city needs an id and a name")
	}
	if strings.TrimSpace(city.Timezone) == "" {
		city.Timezone = "UTC"
	}

	m.mu.Lock()
	if m.hasLocked(city.ID) {
		m.mu.Unlock()
		return nil
	}
	m.cities = append(m.cities, city)
	if m.selected == "" {
		m.selected = city.ID
	}
	m.persistLocked()
	cities, notify := m.snapshotLocked()
	m.mu.Unlock()

	if notify != nil {
		notify(cities)
	}
	return nil
}

// Remove deletes a city and fixes up the selection: removing the selected
// city moves the selection to the first remaining entry, removing the last
// city clears it. Reports whether the city was on the list.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	index := -1
	for i, c := range m.cities {
		if c.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		m.mu.Unlock()
		return false
	}

	m.cities = append(m.cities[:index], m.cities[index+1:]...)
	if m.selected == id {
		m.selected = ""
		if len(m.cities) > 0 {
			m.selected = m.cities[0].ID
		}
	}
	m.persistLocked()
	cities, notify := m.snapshotLocked()
	m.mu.Unlock()

	if notify != nil {
		notify(cities)
	}
	return true
}

// Reorder rearranges the list to match ids, which must be a permutation of
// the saved ids. The selection follows the city, not the position.
func (m *Manager) Reorder(ids []string) error {
	m.mu.Lock()
	if len(ids) != len(m.cities) {
		have := len(m.cities)
		m.mu.Unlock()
		return fmt.Errorf("order names %d cities, list has %d", len(ids), have)
	}

	byID := make(map[string]City, len(m.cities))
	for _, c := range m.cities {
		byID[c.ID] = c
	}
	reordered := make([]City, 0, len(ids))
	for _, id := range ids {
		city, ok := byID[id]
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("unknown or repeated city %q", id)
		}
		delete(byID, id)
		reordered = append(reordered, city)
	}

	m.cities = reordered
	m.persistLocked()
	cities, notify := m.snapshotLocked()
	m.mu.Unlock()

	if notify != nil {
		notify(cities)
	}
	return nil
}

func (m *Manager) Select(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasLocked(id) {
		return fmt.Errorf("unknown city %q", id)
	}
	m.selected = id
	if err := m.store.SaveSelection(id); err != nil {
		m.logger.Warn("persist selection", "error", err)
	}
	return nil
}

func (m *Manager) Selected() (City, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cities {
		if c.ID == m.selected {
			return c, true
		}
	}
	return City{}, false
}

func (m *Manager) hasLocked(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range m.cities {
		if c.ID == id {
			return true
		}
	}
	return false
}

// persistLocked logs storage failures instead of propagating them; the
// in-memory list stays authoritative for the session either way.
func (m *Manager) persistLocked() {
	if err := m.store.Save(m.cities); err != nil {
		m.logger.Warn("persist city list", "error", err)
	}
	if err := m.store.SaveSelection(m.selected); err != nil {
		m.logger.Warn("persist selection", "error", err)
	}
}

func (m *Manager) snapshotLocked() ([]City, func([]City)) {
	return append([]City(nil), m.cities...), m.onChange
}
