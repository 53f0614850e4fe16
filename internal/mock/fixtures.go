// Package mock is the in-process stand-in for platform resources that have
// no live backend yet: login, profile, dashboard statistics and events.
package mock

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"impact-gateway/internal/model"
)

// DashboardStats is the fixed record served by the dashboard stats endpoint.
type DashboardStats struct {
	ActiveOpportunities int     `json:"active_opportunities" yaml:"active_opportunities"`
	Applications        int     `json:"applications" yaml:"applications"`
	Volunteers          int     `json:"volunteers" yaml:"volunteers"`
	VolunteerHours      int     `json:"volunteer_hours" yaml:"volunteer_hours"`
	FundsRaised         float64 `json:"funds_raised" yaml:"funds_raised"`
	ImpactScore         float64 `json:"impact_score" yaml:"impact_score"`
}

// Event is a community event kept in memory for the life of the process.
type Event struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Date        string    `json:"date" yaml:"date"`
	Location    string    `json:"location,omitempty" yaml:"location"`
	CreatedBy   string    `json:"created_by,omitempty" yaml:"created_by"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Fixtures is the seed data for the mock backend. Profiles are keyed by
// role and answer profile requests whose token carries only a role.
type Fixtures struct {
	Stats    DashboardStats        `yaml:"stats"`
	Events   []Event               `yaml:"events"`
	Profiles map[string]model.User `yaml:"profiles"`
}

var roles = []string{model.RoleAdmin, model.RoleOrganization, model.RoleStudent}

func defaultProfiles() map[string]model.User {
	return map[string]model.User{
		model.RoleAdmin:        UserFor("admin@impact.example"),
		model.RoleOrganization: UserFor("org@impact.example"),
		model.RoleStudent:      UserFor("student@impact.example"),
	}
}

// DefaultFixtures returns the built-in seed data.
func DefaultFixtures() Fixtures {
	seeded := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	return Fixtures{
		Profiles: defaultProfiles(),
		Stats: DashboardStats{
			ActiveOpportunities: 24,
			Applications:        187,
			Volunteers:          342,
			VolunteerHours:      5120,
			FundsRaised:         48250.50,
			ImpactScore:         87.5,
		},
		Events: []Event{
			{
				ID:          "evt-1",
				Title:       "River Clean-up Day",
				Description: "Volunteers collect litter along the riverbank.",
				Date:        "2026-04-18",
				Location:    "Riverside Park",
				CreatedBy:   "organization",
				CreatedAt:   seeded,
			},
			{
				ID:          "evt-2",
				Title:       "Tutoring Drop-in",
				Description: "Peer tutoring for secondary school students.",
				Date:        "2026-05-02",
				Location:    "Central Library",
				CreatedBy:   "organization",
				CreatedAt:   seeded,
			},
		},
	}
}

// LoadFixtures reads seed data from a YAML file. Sections missing from the
// file keep their built-in defaults.
func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("mock: read fixtures %s: %w", path, err)
	}

	var file struct {
		Stats    *DashboardStats `yaml:"stats"`
		Events   []Event         `yaml:"events"`
		Profiles map[string]struct {
			ID    string `yaml:"id"`
			Name  string `yaml:"name"`
			Email string `yaml:"email"`
		} `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Fixtures{}, fmt.Errorf("mock: parse fixtures %s: %w", path, err)
	}

	fx := DefaultFixtures()
	if file.Stats != nil {
		fx.Stats = *file.Stats
	}
	if file.Events != nil {
		fx.Events = file.Events
	}
	for i, ev := range fx.Events {
		if ev.Title == "" {
			return Fixtures{}, fmt.Errorf("mock: fixtures %s: events[%d] has no title", path, i)
		}
	}
	for role, p := range file.Profiles {
		if !slices.Contains(roles, role) {
			return Fixtures{}, fmt.Errorf("mock: fixtures %s: profile for unknown role %q", path, role)
		}
		if p.Email == "" {
			return Fixtures{}, fmt.Errorf("mock: fixtures %s: %s profile has no email", path, role)
		}
		user := UserFor(p.Email)
		user.Role = role
		if p.ID != "" {
			user.ID = p.ID
		}
		if p.Name != "" {
			user.Name = p.Name
		}
		fx.Profiles[role] = user
	}
	return fx, nil
}
