// Package organizations manages organization profiles and serves the derived
// aggregate and maturity projections from a per-organization cache.
package organizations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"github.com/xbeat/certicredia-sub001/internal/aggregate"
	"github.com/xbeat/certicredia-sub001/internal/domain"
	"github.com/xbeat/certicredia-sub001/internal/maturity"
	"github.com/xbeat/certicredia-sub001/internal/ports"
)

var ErrInvalidOrganization = errors.New("invalid organization")

type Service struct {
	orgs        ports.OrganizationRepository
	assessments ports.AssessmentRepository
	cache       *aggregate.Cache
	log         logrus.FieldLogger
	// recompute, when set, receives organizations whose projections should be
	// warmed in the background.
	recompute chan<- string
}

var (
	_ ports.Organizations  = (*Service)(nil)
	_ ports.ChangeListener = (*Service)(nil)
)

func New(orgs ports.OrganizationRepository, assessments ports.AssessmentRepository, cache *aggregate.Cache, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cache == nil {
		cache = aggregate.NewCache()
	}
	return &Service{orgs: orgs, assessments: assessments, cache: cache, log: log}
}

// WarmWith routes change notifications to a background recompute queue.
func (s *Service) WarmWith(queue chan<- string) {
	s.recompute = queue
}

func (s *Service) Create(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	org.Name = strings.TrimSpace(org.Name)
	if org.Name == "" {
		return domain.Organization{}, fmt.Errorf("%w: name is required", ErrInvalidOrganization)
	}
	if org.Employees < 0 {
		return domain.Organization{}, fmt.Errorf("%w: employees must not be negative", ErrInvalidOrganization)
	}
	org.Sector = strings.ToLower(strings.TrimSpace(org.Sector))
	if org.Website != "" {
		d, err := NormalizeDomain(org.Website)
		if err != nil {
			return domain.Organization{}, fmt.Errorf("%w: %v", ErrInvalidOrganization, err)
		}
		org.Domain = d
	}
	created, err := s.orgs.CreateOrganization(ctx, org)
	if err != nil {
		return domain.Organization{}, err
	}
	s.log.WithFields(logrus.Fields{"org_id": created.ID, "sector": created.Sector}).Info("organization created")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Organization, error) {
	org, found, err := s.orgs.GetOrganization(ctx, id)
	if err != nil {
		return domain.Organization{}, err
	}
	if !found {
		return domain.Organization{}, fmt.Errorf("%w: organization %s", domain.ErrNotFound, id)
	}
	return org, nil
}

func (s *Service) Aggregate(ctx context.Context, id string) (domain.OrganizationAggregate, error) {
	e, err := s.projection(ctx, id)
	if err != nil {
		return domain.OrganizationAggregate{}, err
	}
	return e.Aggregate, nil
}

func (s *Service) Maturity(ctx context.Context, id string) (domain.MaturityModel, error) {
	e, err := s.projection(ctx, id)
	if err != nil {
		return domain.MaturityModel{}, err
	}
	return e.Maturity, nil
}

// AssessmentChanged drops the cached projections before the write returns, so a
// read that follows the write never sees the previous state.
func (s *Service) AssessmentChanged(orgID string) {
	s.cache.Invalidate(orgID)
	if s.recompute == nil {
		return
	}
	select {
	case s.recompute <- orgID:
	default:
		s.log.WithField("org_id", orgID).Debug("recompute queue full, projection will be rebuilt on read")
	}
}

// Recompute rebuilds the projections of one organization from the current
// assessment records and stores them unless an invalidation raced with it.
func (s *Service) Recompute(ctx context.Context, orgID string) (aggregate.Entry, error) {
	gen := s.cache.Generation(orgID)

	org, found, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		return aggregate.Entry{}, fmt.Errorf("load organization: %w", err)
	}
	if !found {
		// Assessments may be recorded for organizations without a profile.
		org = domain.Organization{ID: orgID}
	}
	records, err := s.assessments.ListCurrent(ctx, orgID)
	if err != nil {
		return aggregate.Entry{}, fmt.Errorf("list assessments: %w", err)
	}

	agg := aggregate.Compute(orgID, records)
	e := aggregate.Entry{Aggregate: agg, Maturity: maturity.Compute(agg, org)}
	if !s.cache.Store(orgID, gen, e) {
		s.log.WithField("org_id", orgID).Debug("discarding stale projection")
	}
	return e, nil
}

func (s *Service) projection(ctx context.Context, id string) (aggregate.Entry, error) {
	if strings.TrimSpace(id) == "" {
		return aggregate.Entry{}, fmt.Errorf("%w: organization id is required", ErrInvalidOrganization)
	}
	if e, ok := s.cache.Get(id); ok {
		return e, nil
	}
	return s.Recompute(ctx, id)
}

// NormalizeDomain reduces a website URL or host name to its registrable domain,
// e.g. "https://www.shop.example.co.uk/about" becomes "example.co.uk".
func NormalizeDomain(website string) (string, error) {
	raw := strings.TrimSpace(strings.ToLower(website))
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse website: %w", err)
	}
	host := strings.TrimSuffix(u.Hostname(), ".")
	if host == "" {
		return "", fmt.Errorf("website %q has no host", website)
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("website %q: %w", website, err)
	}
	return etld1, nil
}
