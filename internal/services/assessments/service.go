// Package assessments records indicator assessments as an append-only version
// history per (organization, indicator) and implements non-destructive revert.
package assessments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xbeat/certicredia-sub001/internal/canonical"
	"github.com/xbeat/certicredia-sub001/internal/domain"
	"github.com/xbeat/certicredia-sub001/internal/ports"
	"github.com/xbeat/certicredia-sub001/internal/scoring"
)

var ErrInvalidKey = errors.New("organization and indicator are required")

type Service struct {
	repo      ports.AssessmentRepository
	defs      ports.IndicatorSource
	scorer    *scoring.Engine
	guard     *writeGuard
	listeners []ports.ChangeListener
	log       logrus.FieldLogger
	now       func() time.Time
}

var _ ports.Assessments = (*Service)(nil)

func New(repo ports.AssessmentRepository, defs ports.IndicatorSource, scorer *scoring.Engine, log logrus.FieldLogger, listeners ...ports.ChangeListener) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		repo:      repo,
		defs:      defs,
		scorer:    scorer,
		guard:     newWriteGuard(),
		listeners: listeners,
		log:       log,
		now:       time.Now,
	}
}

// Preview scores responses without persisting anything.
func (s *Service) Preview(ctx context.Context, indicatorID string, responses domain.Responses) (domain.ScoreResult, error) {
	if _, _, err := domain.ParseIndicatorID(indicatorID); err != nil {
		return domain.ScoreResult{}, err
	}
	def, err := s.defs.Get(indicatorID)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	return s.scorer.Compute(def, responses), nil
}

// Assess scores the live responses and appends them as a new version. When the
// indicator has no known definition a caller-supplied result is stored as is,
// provided its values are in range.
func (s *Service) Assess(ctx context.Context, in ports.AssessInput) (domain.Version, error) {
	if err := validateKey(in.Key); err != nil {
		return domain.Version{}, err
	}
	var result domain.ScoreResult
	def, err := s.defs.Get(in.Key.IndicatorID)
	switch {
	case err == nil:
		result = s.scorer.Compute(def, in.Responses)
	case errors.Is(err, domain.ErrUnknownIndicator) && in.Result != nil:
		if err := in.Result.Validate(); err != nil {
			return domain.Version{}, err
		}
		result = in.Result.Clone()
	default:
		return domain.Version{}, err
	}

	responses := in.Responses.Clone()
	if responses == nil {
		responses = domain.Responses{}
	}
	snap := domain.Snapshot{Result: result, Responses: responses, Metadata: in.Metadata}
	return s.append(ctx, in.Key, in.User, domain.ActionAssess, nil, snap)
}

// Reset stores a zero-value assessment as a regular version so that it shows
// up in history and can itself be reverted.
func (s *Service) Reset(ctx context.Context, key domain.AssessmentKey, user string) (domain.Version, error) {
	if err := validateKey(key); err != nil {
		return domain.Version{}, err
	}
	result := scoring.Zero()
	if def, err := s.defs.Get(key.IndicatorID); err == nil {
		result = s.scorer.Compute(def, domain.Responses{})
	}
	snap := domain.Snapshot{Result: result, Responses: domain.Responses{}}
	return s.append(ctx, key, user, domain.ActionReset, nil, snap)
}

// Revert appends a new version whose content is copied from target. The target
// and every other existing version are left untouched.
func (s *Service) Revert(ctx context.Context, key domain.AssessmentKey, target int, user string) (domain.Version, error) {
	if err := validateKey(key); err != nil {
		return domain.Version{}, err
	}
	release, err := s.guard.acquire(ctx, key)
	if err != nil {
		return domain.Version{}, err
	}
	defer release()

	history, err := s.repo.History(ctx, key)
	if err != nil {
		return domain.Version{}, fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return domain.Version{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, key.OrganizationID, key.IndicatorID)
	}
	var source *domain.Version
	for i := range history {
		if history[i].Version == target {
			source = &history[i]
			break
		}
	}
	if source == nil {
		return domain.Version{}, fmt.Errorf("%w: %d", domain.ErrVersionNotFound, target)
	}
	from := source.Version
	return s.appendLocked(ctx, key, user, domain.ActionRevert, &from, source.Data.Clone())
}

func (s *Service) Get(ctx context.Context, key domain.AssessmentKey) (domain.AssessmentRecord, error) {
	rec, found, err := s.repo.Get(ctx, key)
	if err != nil {
		return domain.AssessmentRecord{}, err
	}
	if !found {
		return domain.AssessmentRecord{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, key.OrganizationID, key.IndicatorID)
	}
	return rec, nil
}

func (s *Service) History(ctx context.Context, key domain.AssessmentKey) ([]domain.Version, error) {
	return s.repo.History(ctx, key)
}

func (s *Service) List(ctx context.Context, orgID string) ([]domain.AssessmentRecord, error) {
	return s.repo.ListCurrent(ctx, orgID)
}

// WriteInProgress reports whether a write currently holds the key. Autosave
// callers use it to stand down while a reset or revert is running.
func (s *Service) WriteInProgress(key domain.AssessmentKey) bool {
	return s.guard.inProgress(key)
}

func (s *Service) append(ctx context.Context, key domain.AssessmentKey, user, action string, from *int, snap domain.Snapshot) (domain.Version, error) {
	release, err := s.guard.acquire(ctx, key)
	if err != nil {
		return domain.Version{}, err
	}
	defer release()
	return s.appendLocked(ctx, key, user, action, from, snap)
}

func (s *Service) appendLocked(ctx context.Context, key domain.AssessmentKey, user, action string, from *int, snap domain.Snapshot) (domain.Version, error) {
	digest, err := canonical.Digest(snap)
	if err != nil {
		return domain.Version{}, fmt.Errorf("digest snapshot: %w", err)
	}
	v, err := s.repo.Append(ctx, key, ports.NewVersion{
		Timestamp:    s.now(),
		User:         user,
		Action:       action,
		RevertedFrom: from,
		Digest:       digest,
		Data:         snap,
	})
	log := s.log.WithFields(logrus.Fields{
		"org_id":       key.OrganizationID,
		"indicator_id": key.IndicatorID,
		"action":       action,
	})
	if err != nil {
		log.WithError(err).Error("append version failed")
		return domain.Version{}, fmt.Errorf("save %s/%s: %w", key.OrganizationID, key.IndicatorID, err)
	}
	log.WithField("version", v.Version).Info("assessment version appended")

	for _, l := range s.listeners {
		l.AssessmentChanged(key.OrganizationID)
	}
	return v, nil
}

func validateKey(key domain.AssessmentKey) error {
	if strings.TrimSpace(key.OrganizationID) == "" || key.IndicatorID == "" {
		return ErrInvalidKey
	}
	_, _, err := domain.ParseIndicatorID(key.IndicatorID)
	return err
}
