package ports

import (
	"context"
	"time"

	"github.com/xbeat/certicredia-sub001/internal/domain"
)

// NewVersion is the content of a version about to be appended. The store
// assigns the version number.
type NewVersion struct {
	Timestamp    time.Time
	User         string
	Action       string
	RevertedFrom *int
	Digest       string
	Data         domain.Snapshot
}

// AssessmentRepository persists one record per (organization, indicator) with
// an append-only history. Append must number versions max+1 atomically per key;
// it never modifies an existing version.
type AssessmentRepository interface {
	Append(ctx context.Context, key domain.AssessmentKey, v NewVersion) (domain.Version, error)
	Get(ctx context.Context, key domain.AssessmentKey) (rec domain.AssessmentRecord, found bool, err error)
	History(ctx context.Context, key domain.AssessmentKey) ([]domain.Version, error)
	// ListCurrent returns current records of an organization ordered by indicator id.
	// History is not populated.
	ListCurrent(ctx context.Context, orgID string) ([]domain.AssessmentRecord, error)
}

// OrganizationRepository stores organization metadata.
type OrganizationRepository interface {
	CreateOrganization(ctx context.Context, org domain.Organization) (domain.Organization, error)
	GetOrganization(ctx context.Context, id string) (org domain.Organization, found bool, err error)
}
