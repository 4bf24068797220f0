// Package timezone renders alert timestamps in the operator's configured zone.
package timezone

import (
	"fmt"
	"time"

	// embedded zone database so containers without /usr/share/zoneinfo still resolve names
	_ "time/tzdata"
)

// DisplayLayout is used for human-facing alert timestamps
const DisplayLayout = "2006-01-02 15:04:05 MST"

// Manager formats times in one location
type Manager struct {
	name     string
	location *time.Location
}

// NewManager loads the named zone; "" means UTC
func NewManager(name string) (*Manager, error) {
	if name == "" {
		name = "UTC"
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", name, err)
	}
	return &Manager{name: name, location: location}, nil
}

// UTC returns a manager for UTC
func UTC() *Manager {
	return &Manager{name: "UTC", location: time.UTC}
}

// Name returns the zone name
func (m *Manager) Name() string { return m.name }

// Format renders t with DisplayLayout. A nil Manager formats in UTC.
func (m *Manager) Format(t time.Time) string {
	if m == nil {
		return t.UTC().Format(DisplayLayout)
	}
	return t.In(m.location).Format(DisplayLayout)
}
