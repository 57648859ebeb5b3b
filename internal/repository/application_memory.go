package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/transport-portal/internal/domain"
)

// InMemoryApplications is a mutex-guarded ApplicationRepository used in tests
// and when no database is configured.
type InMemoryApplications struct {
	mu   sync.RWMutex
	apps map[string]domain.Application
	now  func() time.Time
}

// NewInMemoryApplications builds an empty store.
func NewInMemoryApplications() *InMemoryApplications {
	return &InMemoryApplications{apps: make(map[string]domain.Application), now: time.Now}
}

func (s *InMemoryApplications) Create(_ context.Context, app *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(*app, ""); err != nil {
		return err
	}
	now := s.now()
	app.ID = uuid.NewString()
	app.Fees.Recompute()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.CreatedAt
	}
	if app.Notes == nil {
		app.Notes = []domain.Note{}
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemoryApplications) GetByID(_ context.Context, kind domain.ApplicationKind, id string) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok || app.Kind != kind {
		return nil, ErrNotFound
	}
	out := app.Clone()
	return &out, nil
}

func (s *InMemoryApplications) List(_ context.Context, filter ApplicationFilter) ([]domain.Application, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []domain.Application{}
	for _, app := range s.apps {
		if matches(app, filter) {
			matched = append(matched, app.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []domain.Application{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *InMemoryApplications) Mutate(_ context.Context, kind domain.ApplicationKind, id string, fn MutateFunc) (*domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.apps[id]
	if !ok || current.Kind != kind {
		return nil, ErrNotFound
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	if err := s.checkUnique(working, id); err != nil {
		return nil, err
	}
	// identity, ownership, type, creation time and the ledger are not writable here
	working.ID = current.ID
	working.Kind = current.Kind
	working.OwnerID = current.OwnerID
	working.ApplicationType = current.ApplicationType
	working.CreatedAt = current.CreatedAt
	working.Notes = current.Notes
	working.Fees.Recompute()
	working.UpdatedAt = s.now()
	s.apps[id] = working
	out := working.Clone()
	return &out, nil
}

func (s *InMemoryApplications) AppendNote(_ context.Context, kind domain.ApplicationKind, id string, note *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok || app.Kind != kind {
		return ErrNotFound
	}
	note.ID = uuid.NewString()
	note.ApplicationID = id
	app.Notes = append(append([]domain.Note{}, app.Notes...), *note)
	app.UpdatedAt = s.now()
	s.apps[id] = app
	return nil
}

func (s *InMemoryApplications) Delete(_ context.Context, kind domain.ApplicationKind, id string, guard func(app *domain.Application) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok || app.Kind != kind {
		return ErrNotFound
	}
	if guard != nil {
		locked := app.Clone()
		if err := guard(&locked); err != nil {
			return err
		}
	}
	delete(s.apps, id)
	return nil
}

func (s *InMemoryApplications) Snapshot(_ context.Context, kind domain.ApplicationKind) ([]domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Application{}
	for _, app := range s.apps {
		if app.Kind == kind {
			snap := app.Clone()
			snap.Notes = nil
			out = append(out, snap)
		}
	}
	return out, nil
}

// checkUnique enforces the same unique indexes as the Postgres migrations.
// Callers hold the write lock.
func (s *InMemoryApplications) checkUnique(app domain.Application, selfID string) error {
	keys := app.Details.UniqueKeys()
	for id, existing := range s.apps {
		if id == selfID {
			continue
		}
		if app.RegistrationNumber != nil && existing.RegistrationNumber != nil &&
			*app.RegistrationNumber == *existing.RegistrationNumber {
			return &DuplicateError{Field: "registrationNumber", Value: *app.RegistrationNumber}
		}
		if existing.Kind != app.Kind {
			continue
		}
		other := existing.Details.UniqueKeys()
		for _, field := range sortedKeys(keys) {
			if keys[field] != "" && other[field] == keys[field] {
				return &DuplicateError{Field: field, Value: keys[field]}
			}
		}
	}
	return nil
}

func matches(app domain.Application, filter ApplicationFilter) bool {
	if app.Kind != filter.Kind {
		return false
	}
	if filter.OwnerID != nil && app.OwnerID != *filter.OwnerID {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if app.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.ApplicationType != nil && app.ApplicationType != *filter.ApplicationType {
		return false
	}
	if filter.Category != nil && app.Details.Category() != *filter.Category {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" && !strings.Contains(searchText(&app), term) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
