package mock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"impact-gateway/internal/config"
	"impact-gateway/internal/model"
)

// DemoPassword is the only password the mock login accepts.
const DemoPassword = "demo"

var (
	// ErrMissingCredentials is returned when email or password is empty.
	ErrMissingCredentials = errors.New("email and password are required")
	// ErrInvalidCredentials is returned for a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidEvent is returned when a new event lacks required fields.
	ErrInvalidEvent = errors.New("invalid event")
)

// userNamespace scopes the deterministic user IDs derived from emails.
var userNamespace = uuid.MustParse("6f1c3a52-8f0e-4d7b-9a51-2b7c4e9d0a11")

// EventInput is the client-supplied part of a new event.
type EventInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Location    string `json:"location"`
}

// Backend holds the mock data. The event list is the only mutable state and
// is shared by all requests.
type Backend struct {
	mu     sync.Mutex
	events []Event

	stats    DashboardStats
	profiles map[string]model.User
	minDelay time.Duration
	maxDelay time.Duration

	now   func() time.Time
	newID func() string
}

// NewBackend builds a Backend from the mock section of cfg, loading fixtures
// from cfg.Mock.Fixtures when it is set.
func NewBackend(cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	fx := DefaultFixtures()
	if cfg.Mock.Fixtures != "" {
		loaded, err := LoadFixtures(cfg.Mock.Fixtures)
		if err != nil {
			return nil, err
		}
		fx = loaded
		logger.Info("mock fixtures loaded", "path", cfg.Mock.Fixtures, "events", len(fx.Events))
	}

	return NewBackendFromFixtures(fx,
		time.Duration(cfg.Mock.MinDelayMS)*time.Millisecond,
		time.Duration(cfg.Mock.MaxDelayMS)*time.Millisecond,
	), nil
}

// NewBackendFromFixtures builds a Backend seeded with fx.
func NewBackendFromFixtures(fx Fixtures, minDelay, maxDelay time.Duration) *Backend {
	return &Backend{
		events:   slices.Clone(fx.Events),
		stats:    fx.Stats,
		profiles: maps.Clone(fx.Profiles),
		minDelay: minDelay,
		maxDelay: max(minDelay, maxDelay),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Authenticate checks the demo credentials and returns the matching user.
// The role follows the email: "admin" wins over "org", anything else is a
// student.
func (b *Backend) Authenticate(email, password string) (model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.User{}, ErrMissingCredentials
	}
	if password != DemoPassword {
		return model.User{}, ErrInvalidCredentials
	}
	return UserFor(email), nil
}

// UserFor returns the mock user record for email.
func UserFor(email string) model.User {
	lower := strings.ToLower(email)

	role := model.RoleStudent
	switch {
	case strings.Contains(lower, "admin"):
		role = model.RoleAdmin
	case strings.Contains(lower, "org"):
		role = model.RoleOrganization
	}

	name, _, _ := strings.Cut(email, "@")
	return model.User{
		ID:    uuid.NewSHA1(userNamespace, []byte(lower)).String(),
		Name:  name,
		Email: email,
		Role:  role,
	}
}

// Profile returns the fixture profile for role.
func (b *Backend) Profile(role string) (model.User, bool) {
	u, ok := b.profiles[role]
	return u, ok
}

// Stats returns the dashboard statistics after the artificial delay.
func (b *Backend) Stats(ctx context.Context) (DashboardStats, error) {
	if err := b.Delay(ctx); err != nil {
		return DashboardStats{}, err
	}
	return b.stats, nil
}

// Events returns a snapshot of the event list.
func (b *Backend) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.events)
}

// AddEvent appends a new event and returns it.
func (b *Backend) AddEvent(in EventInput, createdBy string) (Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Event{}, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if in.Date != "" {
		if _, err := time.Parse(time.DateOnly, in.Date); err != nil {
			return Event{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidEvent)
		}
	}

	ev := Event{
		ID:          b.newID(),
		Title:       title,
		Description: in.Description,
		Date:        in.Date,
		Location:    in.Location,
		CreatedBy:   createdBy,
		CreatedAt:   b.now().UTC(),
	}

	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()

	return ev, nil
}

// Delay waits a uniformly random duration in [minDelay, maxDelay]. It returns
// ctx.Err() if the context ends first.
func (b *Backend) Delay(ctx context.Context) error {
	d := b.minDelay
	if spread := b.maxDelay - b.minDelay; spread > 0 {
		d += rand.N(spread + 1)
	}
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
