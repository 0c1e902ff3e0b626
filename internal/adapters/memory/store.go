// Package memory is an in-process implementation of the repository ports.
// Versions are copied on the way in and out so callers can never alias stored
// history.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xbeat/certicredia-sub001/internal/domain"
	"github.com/xbeat/certicredia-sub001/internal/ports"
)

type Store struct {
	mu      sync.RWMutex
	records map[domain.AssessmentKey][]domain.Version
	orgs    map[string]domain.Organization
	now     func() time.Time
}

var (
	_ ports.AssessmentRepository   = (*Store)(nil)
	_ ports.OrganizationRepository = (*Store)(nil)
)

func New() *Store {
	return &Store{
		records: map[domain.AssessmentKey][]domain.Version{},
		orgs:    map[string]domain.Organization{},
		now:     time.Now,
	}
}

func (s *Store) Append(ctx context.Context, key domain.AssessmentKey, nv ports.NewVersion) (domain.Version, error) {
	if err := ctx.Err(); err != nil {
		return domain.Version{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.records[key]
	next := 1
	if n := len(history); n > 0 {
		next = history[n-1].Version + 1
	}
	v := domain.Version{
		Version:      next,
		Timestamp:    nv.Timestamp.UTC(),
		User:         nv.User,
		Action:       nv.Action,
		RevertedFrom: nv.RevertedFrom,
		Digest:       nv.Digest,
		Data:         nv.Data,
	}.Clone()
	s.records[key] = append(history, v)
	return v.Clone(), nil
}

func (s *Store) Get(ctx context.Context, key domain.AssessmentKey) (domain.AssessmentRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.AssessmentRecord{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.records[key]
	if len(history) == 0 {
		return domain.AssessmentRecord{}, false, nil
	}
	rec := domain.AssessmentRecord{
		OrganizationID: key.OrganizationID,
		IndicatorID:    key.IndicatorID,
		Current:        history[len(history)-1].Clone(),
		History:        cloneAll(history),
	}
	return rec, true, nil
}

func (s *Store) History(ctx context.Context, key domain.AssessmentKey) ([]domain.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.records[key]), nil
}

func (s *Store) ListCurrent(ctx context.Context, orgID string) ([]domain.AssessmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.AssessmentRecord{}
	for key, history := range s.records {
		if key.OrganizationID != orgID || len(history) == 0 {
			continue
		}
		out = append(out, domain.AssessmentRecord{
			OrganizationID: key.OrganizationID,
			IndicatorID:    key.IndicatorID,
			Current:        history[len(history)-1].Clone(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndicatorID < out[j].IndicatorID })
	return out, nil
}

func (s *Store) CreateOrganization(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	if err := ctx.Err(); err != nil {
		return domain.Organization{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = s.now().UTC()
	}
	s.orgs[org.ID] = org
	return org, nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (domain.Organization, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Organization{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	return org, ok, nil
}

func cloneAll(history []domain.Version) []domain.Version {
	out := make([]domain.Version, len(history))
	for i, v := range history {
		out[i] = v.Clone()
	}
	return out
}
