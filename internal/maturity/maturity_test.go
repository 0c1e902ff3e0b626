package maturity

import (
	"reflect"
	"testing"

	"github.com/xbeat/certicredia-sub001/internal/domain"
)

func aggregateOf(scores map[string]float64) domain.OrganizationAggregate {
	agg := domain.OrganizationAggregate{OrganizationID: "org-1", ByCategory: map[string]domain.CategoryStats{}}
	for cat, s := range scores {
		agg.ByCategory[cat] = domain.CategoryStats{AvgScore: s, TotalAssessments: 1}
	}
	return agg
}

func TestLevelForBoundaries(t *testing.T) {
	cases := []struct {
		cpf   float64
		level int
		name  string
	}{
		{100, 5, "Adaptive"},
		{80, 5, "Adaptive"},
		{79.9, 4, "Optimizing"},
		{60, 4, "Optimizing"},
		{59.9, 3, "Managed"},
		{40, 3, "Managed"},
		{20, 2, "Defined"},
		{10, 1, "Developing"},
		{9.9, 0, "Initial"},
		{0, 0, "Initial"},
	}
	for _, tc := range cases {
		if got := LevelFor(tc.cpf); got != tc.level {
			t.Errorf("LevelFor(%v) = %d, want %d", tc.cpf, got, tc.level)
		}
		if got := LevelName(tc.level); got != tc.name {
			t.Errorf("LevelName(%d) = %s, want %s", tc.level, got, tc.name)
		}
	}
}

func TestComputeTopLevelOmitsROI(t *testing.T) {
	m := Compute(aggregateOf(map[string]float64{"1": 0.2}), domain.Organization{})
	if m.CPFScore != 80 {
		t.Fatalf("cpf_score = %v, want 80", m.CPFScore)
	}
	if m.MaturityLevel != 5 || m.LevelName != "Adaptive" {
		t.Fatalf("level = %d %s, want 5 Adaptive", m.MaturityLevel, m.LevelName)
	}
	if m.ROIAnalysis != nil {
		t.Fatalf("roi_analysis must be omitted at level 5, got %+v", m.ROIAnalysis)
	}
	if m.ConvergenceIndex != 0 {
		t.Fatalf("convergence_index = %v, want 0 with one category", m.ConvergenceIndex)
	}
	want := []string{"CPF-F", "CPF-P", "CPF-E", "CPF-M"}
	if !reflect.DeepEqual(m.CertificationPath.EligibleFor, want) || m.CertificationPath.CurrentCertification != "CPF-M" {
		t.Fatalf("unexpected certification path %+v", m.CertificationPath)
	}
	if !m.Compliance.DORA.Compliant || !m.Compliance.GDPR.Compliant {
		t.Fatalf("expected full compliance, got %+v", m.Compliance)
	}
}

func TestComputeLevelFollowsDisplayedScore(t *testing.T) {
	// A raw composite of 79.96 displays as 80.0, and the level agrees with
	// what is displayed.
	m := Compute(aggregateOf(map[string]float64{"1": 0.2004}), domain.Organization{})
	if m.CPFScore != 80 {
		t.Fatalf("cpf_score = %v, want 80", m.CPFScore)
	}
	if m.MaturityLevel != 5 {
		t.Fatalf("maturity_level = %d, want 5 for a displayed 80.0", m.MaturityLevel)
	}
}

func TestComputeSpikyProfile(t *testing.T) {
	m := Compute(aggregateOf(map[string]float64{"1": 0.2, "3": 0.8}), domain.Organization{Sector: "Finance", Employees: 100})

	if m.CPFScore != 50 || m.MaturityLevel != 3 || m.LevelName != "Managed" {
		t.Fatalf("unexpected score/level %v %d %s", m.CPFScore, m.MaturityLevel, m.LevelName)
	}
	if m.ConvergenceIndex != 0.7 {
		t.Fatalf("convergence_index = %v, want 0.7", m.ConvergenceIndex)
	}
	if m.GreenDomains != 1 || m.YellowDomains != 0 || m.RedDomains != 1 {
		t.Fatalf("unexpected domain counts g=%d y=%d r=%d", m.GreenDomains, m.YellowDomains, m.RedDomains)
	}
	if m.Compliance.DORA.Compliant || m.Compliance.DORA.LevelGap != 1 {
		t.Fatalf("unexpected dora status %+v", m.Compliance.DORA)
	}
	if !m.Compliance.NIS2.Compliant || !m.Compliance.ISO27001.Compliant {
		t.Fatalf("unexpected compliance %+v", m.Compliance)
	}
	if m.CertificationPath.CurrentCertification != "CPF-P" || m.CertificationPath.NextCertification != "CPF-E" {
		t.Fatalf("unexpected certification path %+v", m.CertificationPath)
	}
	bench := m.SectorBenchmark
	if bench.Sector != "finance" || bench.SectorMean != 62 || bench.Percentile != 32 || bench.Gap != -12 {
		t.Fatalf("unexpected benchmark %+v", bench)
	}
	roi := m.ROIAnalysis
	if roi == nil {
		t.Fatal("expected roi_analysis below level 5")
	}
	if roi.TargetLevel != 4 || roi.TargetCPFScore != 60 || roi.ScoreGap != 10 {
		t.Fatalf("unexpected roi target %+v", roi)
	}
	if roi.EstimatedInvestment != 30000 || roi.EstimatedAnnualSaving != 2500 || roi.PaybackMonths != 144 {
		t.Fatalf("unexpected roi figures %+v", roi)
	}
}

func TestComputeUniformProfileConverges(t *testing.T) {
	m := Compute(aggregateOf(map[string]float64{"1": 0.5, "2": 0.5, "7": 0.5}), domain.Organization{})
	if m.ConvergenceIndex != 1 {
		t.Fatalf("convergence_index = %v, want 1", m.ConvergenceIndex)
	}
	if m.YellowDomains != 3 {
		t.Fatalf("yellow_domains_count = %d, want 3", m.YellowDomains)
	}
}

func TestComputeEmptyAggregate(t *testing.T) {
	m := Compute(domain.OrganizationAggregate{}, domain.Organization{})
	if m.CPFScore != 0 || m.MaturityLevel != 0 || m.LevelName != "Initial" {
		t.Fatalf("unexpected model %+v", m)
	}
	if len(m.CertificationPath.EligibleFor) != 0 || m.CertificationPath.CurrentCertification != "" {
		t.Fatalf("unexpected certification path %+v", m.CertificationPath)
	}
	if m.SectorBenchmark.SectorMean != defaultSectorMean {
		t.Fatalf("unexpected benchmark %+v", m.SectorBenchmark)
	}
}

func TestComputeDeterministic(t *testing.T) {
	agg := aggregateOf(map[string]float64{"1": 0.11, "2": 0.37, "3": 0.52, "4": 0.9, "9": 0.64})
	org := domain.Organization{Sector: "healthcare", Employees: 1200}
	first := Compute(agg, org)
	for i := 0; i < 20; i++ {
		if got := Compute(agg, org); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, got, first)
		}
	}
}
