package ports

import (
	"context"

	"github.com/xbeat/certicredia-sub001/internal/domain"
)

// IndicatorSource resolves indicator definitions by id.
type IndicatorSource interface {
	Get(id string) (*domain.Indicator, error)
}

// Assessments records, resets and reverts indicator assessments.
type Assessments interface {
	Preview(ctx context.Context, indicatorID string, responses domain.Responses) (domain.ScoreResult, error)
	Assess(ctx context.Context, in AssessInput) (domain.Version, error)
	Reset(ctx context.Context, key domain.AssessmentKey, user string) (domain.Version, error)
	Revert(ctx context.Context, key domain.AssessmentKey, target int, user string) (domain.Version, error)
	Get(ctx context.Context, key domain.AssessmentKey) (domain.AssessmentRecord, error)
	History(ctx context.Context, key domain.AssessmentKey) ([]domain.Version, error)
	List(ctx context.Context, orgID string) ([]domain.AssessmentRecord, error)
}

type AssessInput struct {
	Key       domain.AssessmentKey
	Responses domain.Responses
	Metadata  domain.AssessmentMetadata
	User      string
	// Result is used only when no definition is known for the indicator.
	Result *domain.ScoreResult
}

// Organizations manages organization metadata and its derived projections.
type Organizations interface {
	Create(ctx context.Context, org domain.Organization) (domain.Organization, error)
	Get(ctx context.Context, id string) (domain.Organization, error)
	Aggregate(ctx context.Context, id string) (domain.OrganizationAggregate, error)
	Maturity(ctx context.Context, id string) (domain.MaturityModel, error)
}

// ChangeListener is notified after an assessment record of an organization changed.
type ChangeListener interface {
	AssessmentChanged(orgID string)
}
