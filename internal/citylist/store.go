package citylist

import (
	"encoding/json"
	"log/slog"
	"strings"
)

const (
	// settingsKey holds the full ordered list. legacySettingsKey predates
	// the defaults merge and stored only user-added cities.
	settingsKey       = "cities.v2"
	legacySettingsKey = "user_cities"
	selectionKey      = "cities.selected"
)

// Settings is the storage surface the list needs. *storage.Database
// satisfies it.
type Settings interface {
	Get(key string) (string, bool, error)
	Put(key, value string) error
	Delete(key string) error
}

type Store struct {
	settings Settings
	logger   *slog.Logger
}

func NewStore(settings Settings, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{settings: settings, logger: logger}
}

// Load returns the saved city list. A missing entry triggers the legacy
// migration, a corrupt one degrades to the defaults; Load never fails.
func (s *Store) Load() []City {
	raw, ok, err := s.settings.Get(settingsKey)
	if err != nil {
		s.logger.Warn("read city list", "error", err)
		return DefaultCities()
	}
	if !ok {
		return s.migrate()
	}

	var cities []City
	if err := json.Unmarshal([]byte(raw), &cities); err != nil {
		s.logger.Warn("stored city list unreadable, using defaults", "error", err)
		return DefaultCities()
	}
	return sanitize(cities)
}

func (s *Store) Save(cities []City) error {
	raw, err := json.Marshal(cities)
	if err != nil {
		return err
	}
	return s.settings.Put(settingsKey, string(raw))
}

func (s *Store) LoadSelection() string {
	raw, ok, err := s.settings.Get(selectionKey)
	if err != nil || !ok {
		return ""
	}
	return raw
}

func (s *Store) SaveSelection(id string) error {
	if id == "" {
		return s.settings.Delete(selectionKey)
	}
	return s.settings.Put(selectionKey, id)
}

// migrate merges the old user-only list into the defaults, persists the
// combined list under the current key and drops the old one.
func (s *Store) migrate() []City {
	cities := DefaultCities()

	raw, ok, err := s.settings.Get(legacySettingsKey)
	if err != nil {
		s.logger.Warn("read legacy city list", "error", err)
	}
	if err != nil || !ok {
		if err := s.Save(cities); err != nil {
			s.logger.Warn("persist default city list", "error", err)
		}
		return cities
	}

	var userCities []City
	if err := json.Unmarshal([]byte(raw), &userCities); err != nil {
		s.logger.Warn("legacy city list unreadable, keeping defaults", "error", err)
		userCities = nil
	}

	seen := make(map[string]bool, len(cities))
	for _, c := range cities {
		seen[c.ID] = true
	}
	for _, c := range sanitize(userCities) {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		cities = append(cities, c)
	}

	if err := s.Save(cities); err != nil {
		s.logger.Warn("persist migrated city list", "error", err)
		return cities
	}
	if err := s.settings.Delete(legacySettingsKey); err != nil {
		s.logger.Warn("remove legacy city list", "error", err)
	}
	s.logger.Info("migrated legacy city list", "cities", len(cities))
	return cities
}

// sanitize drops entries a hand-edited or truncated store could contain:
// blank ids or names and duplicate ids. Empty timezones become UTC.
func sanitize(cities []City) []City {
	clean := make([]City, 0, len(cities))
	seen := make(map[string]bool, len(cities))
	for _, c := range cities {
		if c.ID == "" || strings.TrimSpace(c.Name) == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if strings.TrimSpace(c.Timezone) == "" {
			c.Timezone = "UTC"
		}
		clean = append(clean, c)
	}
	return clean
}
