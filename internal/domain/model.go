package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Core domain models. Field names on the wire follow the documents consumed by
// the presentation and persistence layers.

const (
	Categories            = 10
	IndicatorsPerCategory = 10
	TotalIndicators       = Categories * IndicatorsPerCategory
)

var (
	ErrNotFound           = errors.New("not found")
	ErrVersionNotFound    = errors.New("version not found")
	ErrVersionConflict    = errors.New("version conflict")
	ErrUnknownIndicator   = errors.New("unknown indicator")
	ErrInvalidIndicatorID = errors.New("invalid indicator id")
	ErrInvalidScore       = errors.New("invalid score result")
)

// Per-indicator maturity levels.
const (
	LevelGreen  = "green"
	LevelYellow = "yellow"
	LevelRed    = "red"
)

// Responses maps a stable item key to its answer: a string for radio and text
// items, a bool for checkboxes.
type Responses map[string]any

// Text returns the answer as a string. Non-string answers report false.
func (r Responses) Text(key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Checked reports whether a checkbox answer is set.
func (r Responses) Checked(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "yes", "1":
			return true
		}
	}
	return false
}

func (r Responses) Clone() Responses {
	if r == nil {
		return nil
	}
	out := make(Responses, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the nested containers a decoded JSON answer may hold.
func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = cloneValue(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}

type ScoreResult struct {
	QuickAssessment float64      `json:"quick_assessment"`
	RedFlags        float64      `json:"red_flags"`
	FinalScore      float64      `json:"final_score"`
	MaturityLevel   string       `json:"maturity_level"`
	Confidence      float64      `json:"confidence"`
	Scored          bool         `json:"scored"`
	Warnings        []string     `json:"warnings,omitempty"`
	Details         ScoreDetails `json:"details"`
}

// Validate checks the value ranges a stored result must respect. Results the
// engine computes always pass; caller-supplied ones may not.
func (r ScoreResult) Validate() error {
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"quick_assessment", r.QuickAssessment},
		{"red_flags", r.RedFlags},
		{"final_score", r.FinalScore},
	} {
		if !(c.v >= 0 && c.v <= 1) {
			return fmt.Errorf("%w: %s %v outside [0,1]", ErrInvalidScore, c.name, c.v)
		}
	}
	if !(r.Confidence >= 0.5 && r.Confidence <= 0.95) {
		return fmt.Errorf("%w: confidence %v outside [0.5,0.95]", ErrInvalidScore, r.Confidence)
	}
	switch r.MaturityLevel {
	case LevelGreen, LevelYellow, LevelRed:
		return nil
	default:
		return fmt.Errorf("%w: maturity_level %q", ErrInvalidScore, r.MaturityLevel)
	}
}

type ScoreDetails struct {
	QuickAssessmentBreakdown []QuestionScore        `json:"quick_assessment_breakdown"`
	RedFlagsList             []RedFlag              `json:"red_flags_list"`
	ConversationBreakdown    ConversationCompletion `json:"conversation_breakdown"`
}

type QuestionScore struct {
	Key           string  `json:"key"`
	Question      string  `json:"question"`
	Answer        string  `json:"answer"`
	Score         float64 `json:"score"`
	Weight        float64 `json:"weight"`
	WeightedScore float64 `json:"weighted_score"`
}

type RedFlag struct {
	Key      string  `json:"key"`
	Flag     string  `json:"flag"`
	Severity string  `json:"severity,omitempty"`
	Impact   float64 `json:"impact"`
}

type ConversationCompletion struct {
	SectionID         string  `json:"section_id,omitempty"`
	TotalQuestions    int     `json:"total_questions"`
	AnsweredQuestions int     `json:"answered_questions"`
	CompletionRate    float64 `json:"completion_rate"`
}

func (s ScoreResult) Clone() ScoreResult {
	out := s
	out.Warnings = cloneSlice(s.Warnings)
	out.Details.QuickAssessmentBreakdown = cloneSlice(s.Details.QuickAssessmentBreakdown)
	out.Details.RedFlagsList = cloneSlice(s.Details.RedFlagsList)
	return out
}

// cloneSlice copies xs, keeping nil and empty distinct so encodings match.
func cloneSlice[T any](xs []T) []T {
	if xs == nil {
		return nil
	}
	out := make([]T, len(xs))
	copy(out, xs)
	return out
}

// AssessmentMetadata is free-form context captured alongside the responses.
type AssessmentMetadata struct {
	Assessor string `json:"assessor,omitempty"`
	Client   string `json:"client,omitempty"`
	Date     string `json:"date,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Snapshot is the persisted content of one version.
type Snapshot struct {
	Result    ScoreResult        `json:"score"`
	Responses Responses          `json:"responses"`
	Metadata  AssessmentMetadata `json:"metadata"`
}

func (s Snapshot) Clone() Snapshot {
	return Snapshot{Result: s.Result.Clone(), Responses: s.Responses.Clone(), Metadata: s.Metadata}
}

// Version actions.
const (
	ActionAssess = "assess"
	ActionReset  = "reset"
	ActionRevert = "revert"
)

// Version is one immutable entry of an assessment history.
type Version struct {
	Version      int       `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
	User         string    `json:"user"`
	Action       string    `json:"action"`
	RevertedFrom *int      `json:"reverted_from,omitempty"`
	Digest       string    `json:"digest"`
	Data         Snapshot  `json:"data"`
}

func (v Version) Clone() Version {
	out := v
	if v.RevertedFrom != nil {
		from := *v.RevertedFrom
		out.RevertedFrom = &from
	}
	out.Data = v.Data.Clone()
	return out
}

type AssessmentKey struct {
	OrganizationID string
	IndicatorID    string
}

// AssessmentRecord holds the current version and the full history for one
// (organization, indicator) pair. Current always equals History[len-1].
type AssessmentRecord struct {
	OrganizationID string    `json:"organization_id"`
	IndicatorID    string    `json:"indicator_id"`
	Current        Version   `json:"current"`
	History        []Version `json:"history,omitempty"`
}

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Sector    string    `json:"sector,omitempty"`
	Employees int       `json:"employees,omitempty"`
	Website   string    `json:"website,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryStats struct {
	AvgScore             float64 `json:"avg_score"`
	AvgConfidence        float64 `json:"avg_confidence"`
	CompletionPercentage float64 `json:"completion_percentage"`
	TotalAssessments     int     `json:"total_assessments"`
}

type Completion struct {
	Percentage         float64 `json:"percentage"`
	AssessedIndicators int     `json:"assessed_indicators"`
	TotalIndicators    int     `json:"total_indicators"`
}

// OrganizationAggregate is a projection over the current assessment records.
type OrganizationAggregate struct {
	OrganizationID string                   `json:"organization_id"`
	ByCategory     map[string]CategoryStats `json:"by_category"`
	OverallRisk    float64                  `json:"overall_risk"`
	Completion     Completion               `json:"completion"`
}

type MaturityModel struct {
	CPFScore          float64           `json:"cpf_score"`
	MaturityLevel     int               `json:"maturity_level"`
	LevelName         string            `json:"level_name"`
	ConvergenceIndex  float64           `json:"convergence_index"`
	GreenDomains      int               `json:"green_domains_count"`
	YellowDomains     int               `json:"yellow_domains_count"`
	RedDomains        int               `json:"red_domains_count"`
	Compliance        Compliance        `json:"compliance"`
	SectorBenchmark   SectorBenchmark   `json:"sector_benchmark"`
	CertificationPath CertificationPath `json:"certification_path"`
	ROIAnalysis       *ROIAnalysis      `json:"roi_analysis,omitempty"`
}

type Compliance struct {
	GDPR     ComplianceStatus `json:"gdpr"`
	NIS2     ComplianceStatus `json:"nis2"`
	DORA     ComplianceStatus `json:"dora"`
	ISO27001 ComplianceStatus `json:"iso27001"`
}

type ComplianceStatus struct {
	Compliant     bool `json:"compliant"`
	RequiredLevel int  `json:"required_level"`
	LevelGap      int  `json:"level_gap"`
}

type SectorBenchmark struct {
	Sector     string  `json:"sector"`
	Percentile int     `json:"percentile"`
	SectorMean float64 `json:"sector_mean"`
	Gap        float64 `json:"gap"`
}

type CertificationPath struct {
	EligibleFor          []string `json:"eligible_for"`
	CurrentCertification string   `json:"current_certification,omitempty"`
	NextCertification    string   `json:"next_certification,omitempty"`
}

type ROIAnalysis struct {
	TargetLevel           int     `json:"target_level"`
	TargetCPFScore        float64 `json:"target_cpf_score"`
	ScoreGap              float64 `json:"score_gap"`
	RiskReduction         float64 `json:"expected_risk_reduction"`
	EstimatedInvestment   float64 `json:"estimated_investment_eur"`
	EstimatedAnnualSaving float64 `json:"estimated_annual_savings_eur"`
	PaybackMonths         float64 `json:"payback_months"`
}
