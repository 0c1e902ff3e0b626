// Package maturity derives the organization-level maturity model from an
// aggregate: composite CPF score, 0-5 level, convergence index, compliance
// readiness, sector benchmark and certification path.
package maturity

import (
	"math"
	"sort"
	"strings"

	"github.com/xbeat/certicredia-sub001/internal/domain"
)

// Level thresholds on the 0-100 CPF score, highest first.
var levelThresholds = []struct {
	min   float64
	level int
}{
	{80, 5}, {60, 4}, {40, 3}, {20, 2}, {10, 1},
}

var levelNames = [...]string{"Initial", "Developing", "Defined", "Managed", "Optimizing", "Adaptive"}

// Category domain classification on avg_score. Independent of the
// per-indicator thresholds authored in definitions.
const (
	greenDomainMax  = 0.33
	yellowDomainMax = 0.66
)

// Minimum organization level per regulation.
const (
	minLevelGDPR     = 2
	minLevelNIS2     = 3
	minLevelISO27001 = 3
	minLevelDORA     = 4
)

// Certification tiers and the level each one requires, lowest first.
var certifications = []struct {
	name  string
	level int
}{
	{"CPF-F", 1}, {"CPF-P", 2}, {"CPF-E", 4}, {"CPF-M", 5},
}

// Sector mean CPF scores used until real cohort data exists.
var sectorMeans = map[string]float64{
	"finance":        62,
	"banking":        62,
	"insurance":      58,
	"healthcare":     48,
	"energy":         55,
	"government":     45,
	"manufacturing":  44,
	"retail":         42,
	"technology":     60,
	"education":      40,
	"transportation": 47,
}

const defaultSectorMean = 50

// LevelFor maps a CPF score to the 0-5 maturity level.
func LevelFor(cpf float64) int {
	for _, t := range levelThresholds {
		if cpf >= t.min {
			return t.level
		}
	}
	return 0
}

// LevelName returns the display name of a maturity level.
func LevelName(level int) string {
	if level < 0 || level >= len(levelNames) {
		return ""
	}
	return levelNames[level]
}

// Compute derives the maturity model. It is deterministic in its inputs.
func Compute(agg domain.OrganizationAggregate, org domain.Organization) domain.MaturityModel {
	cats := make([]string, 0, len(agg.ByCategory))
	for cat := range agg.ByCategory {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	inverted := make([]float64, 0, len(cats))
	var m domain.MaturityModel
	for _, cat := range cats {
		stats := agg.ByCategory[cat]
		inverted = append(inverted, 1-stats.AvgScore)
		switch {
		case stats.AvgScore <= greenDomainMax:
			m.GreenDomains++
		case stats.AvgScore <= yellowDomainMax:
			m.YellowDomains++
		default:
			m.RedDomains++
		}
	}

	if len(inverted) > 0 {
		m.CPFScore = round(100*mean(inverted), 1)
	}
	m.MaturityLevel = LevelFor(m.CPFScore)
	m.LevelName = LevelName(m.MaturityLevel)
	if len(inverted) >= 2 {
		m.ConvergenceIndex = round(math.Max(0, 1-stddev(inverted)), 3)
	}

	m.Compliance = domain.Compliance{
		GDPR:     compliance(m.MaturityLevel, minLevelGDPR),
		NIS2:     compliance(m.MaturityLevel, minLevelNIS2),
		DORA:     compliance(m.MaturityLevel, minLevelDORA),
		ISO27001: compliance(m.MaturityLevel, minLevelISO27001),
	}
	m.SectorBenchmark = benchmark(m.CPFScore, org.Sector)
	m.CertificationPath = certificationPath(m.MaturityLevel)
	if m.MaturityLevel < 5 {
		roi := roiAnalysis(m.CPFScore, m.MaturityLevel, org.Employees)
		m.ROIAnalysis = &roi
	}
	return m
}

func compliance(level, required int) domain.ComplianceStatus {
	gap := required - level
	if gap < 0 {
		gap = 0
	}
	return domain.ComplianceStatus{Compliant: level >= required, RequiredLevel: required, LevelGap: gap}
}

// benchmark places the score against a fixed sector mean. The percentile is a
// linear placement clamped to 1..99 until real cohort statistics are available.
func benchmark(cpf float64, sector string) domain.SectorBenchmark {
	key := strings.ToLower(strings.TrimSpace(sector))
	sectorMean, ok := sectorMeans[key]
	if !ok {
		sectorMean = defaultSectorMean
	}
	pct := int(math.Round(50 + (cpf-sectorMean)*1.5))
	if pct < 1 {
		pct = 1
	}
	if pct > 99 {
		pct = 99
	}
	return domain.SectorBenchmark{
		Sector:     key,
		Percentile: pct,
		SectorMean: sectorMean,
		Gap:        round(cpf-sectorMean, 1),
	}
}

func certificationPath(level int) domain.CertificationPath {
	path := domain.CertificationPath{EligibleFor: []string{}}
	for _, c := range certifications {
		if level >= c.level {
			path.EligibleFor = append(path.EligibleFor, c.name)
			path.CurrentCertification = c.name
			continue
		}
		if path.NextCertification == "" {
			path.NextCertification = c.name
		}
	}
	return path
}

func roiAnalysis(cpf float64, level, employees int) domain.ROIAnalysis {
	target := level + 1
	targetScore := thresholdOf(target)
	gap := math.Max(0, targetScore-cpf)

	// Cost per CPF point and the yearly exposure both scale with headcount.
	costPerPoint := 1500 * sizeFactor(employees)
	exposure := 250 * float64(max(employees, 1))

	roi := domain.ROIAnalysis{
		TargetLevel:         target,
		TargetCPFScore:      targetScore,
		ScoreGap:            round(gap, 1),
		RiskReduction:       round(gap/100, 3),
		EstimatedInvestment: round(gap*costPerPoint, 0),
	}
	roi.EstimatedAnnualSaving = round(roi.RiskReduction*exposure, 0)
	if roi.EstimatedAnnualSaving > 0 {
		roi.PaybackMonths = round(roi.EstimatedInvestment/(roi.EstimatedAnnualSaving/12), 1)
	}
	return roi
}

func thresholdOf(level int) float64 {
	for _, t := range levelThresholds {
		if t.level == level {
			return t.min
		}
	}
	return 0
}

func sizeFactor(employees int) float64 {
	switch {
	case employees < 50:
		return 1
	case employees < 250:
		return 2
	case employees < 1000:
		return 4
	default:
		return 8
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	mu := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - mu) * (x - mu)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
