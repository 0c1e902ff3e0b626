package scoring

import (
	"io"
	"math"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/sirupsen/logrus"

	"github.com/xbeat/certicredia-sub001/internal/domain"
)

func f(v float64) *float64 { return &v }

func quietEngine() *Engine {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(l)
}

func levels() map[string]domain.MaturityLevel {
	return map[string]domain.MaturityLevel{
		domain.LevelGreen:  {ScoreRange: []float64{0, 0.33}},
		domain.LevelYellow: {ScoreRange: []float64{0.34, 0.66}},
		domain.LevelRed:    {ScoreRange: []float64{0.67, 1}},
	}
}

func radio(id string, scores ...float64) domain.Item {
	it := domain.Item{ID: id, Type: domain.ItemRadioGroup, Title: "Question " + id}
	for i, s := range scores {
		it.Options = append(it.Options, domain.Option{Value: string(rune('a' + i)), Label: "Option", Score: f(s)})
	}
	return it
}

func flag(id string, impact float64) domain.Item {
	return domain.Item{ID: id, Type: domain.ItemCheckbox, Label: "Flag " + id, Severity: "high", ScoreImpact: f(impact)}
}

func twoQuestionDef() *domain.Indicator {
	return &domain.Indicator{
		ID: "1.1",
		Sections: []domain.Section{
			{ID: domain.SectionQuickAssessment, Items: []domain.Item{radio("q1", 0.2, 0.8), radio("q2", 0.2, 0.8)}},
			{ID: "red-flags", Items: []domain.Item{flag("rf1", 0.6), flag("rf2", 0.7)}},
			{ID: domain.SectionClientConversation, Items: []domain.Item{{
				ID:        "c1",
				Type:      domain.ItemQuestion,
				Text:      "Tell us about phishing drills",
				Followups: []domain.Followup{{Text: "How often?"}, {Text: "Who runs them?"}},
			}}},
		},
		Scoring: &domain.Scoring{
			QuestionWeights: map[string]float64{"q1": 0.5, "q2": 0.5},
			MaturityLevels:  levels(),
		},
	}
}

func TestComputeFullQuickAssessmentNoRedFlags(t *testing.T) {
	res := quietEngine().Compute(twoQuestionDef(), domain.Responses{"q1": "a", "q2": "b"})

	if !res.Scored {
		t.Fatalf("expected scored result, warnings=%v", res.Warnings)
	}
	if math.Abs(res.QuickAssessment-0.5) > 1e-9 {
		t.Fatalf("quick_assessment = %v, want 0.5", res.QuickAssessment)
	}
	if res.RedFlags != 0 {
		t.Fatalf("red_flags = %v, want 0", res.RedFlags)
	}
	if math.Abs(res.FinalScore-0.35) > 1e-9 {
		t.Fatalf("final_score = %v, want 0.35", res.FinalScore)
	}
	if res.MaturityLevel != domain.LevelYellow {
		t.Fatalf("maturity_level = %s, want yellow", res.MaturityLevel)
	}
	if len(res.Details.QuickAssessmentBreakdown) != 2 {
		t.Fatalf("expected 2 breakdown rows, got %d", len(res.Details.QuickAssessmentBreakdown))
	}
	row := res.Details.QuickAssessmentBreakdown[1]
	if row.Score != 0.8 || row.Weight != 0.5 || math.Abs(row.WeightedScore-0.4) > 1e-9 {
		t.Fatalf("unexpected breakdown row %+v", row)
	}
}

func TestComputeRedFlagCap(t *testing.T) {
	res := quietEngine().Compute(twoQuestionDef(), domain.Responses{"rf1": true, "rf2": true})
	if res.RedFlags != 1.0 {
		t.Fatalf("red_flags = %v, want exactly 1.0", res.RedFlags)
	}
	if len(res.Details.RedFlagsList) != 2 {
		t.Fatalf("expected both flags listed, got %+v", res.Details.RedFlagsList)
	}
	if res.Details.RedFlagsList[0].Flag != "Flag rf1" || res.Details.RedFlagsList[0].Impact != 0.6 {
		t.Fatalf("unexpected flag entry %+v", res.Details.RedFlagsList[0])
	}
	if math.Abs(res.FinalScore-0.3) > 1e-9 {
		t.Fatalf("final_score = %v, want 0.3", res.FinalScore)
	}
}

func TestComputeRedFlagCapProperty(t *testing.T) {
	e := quietEngine()
	prop := func(a, b uint8) bool {
		i1 := float64(a)/255*0.5 + 0.5
		i2 := float64(b)/255*0.5 + 0.51
		def := &domain.Indicator{
			ID:       "2.1",
			Sections: []domain.Section{{ID: "flags", Items: []domain.Item{flag("x", i1), flag("y", i2)}}},
			Scoring:  &domain.Scoring{MaturityLevels: levels()},
		}
		res := e.Compute(def, domain.Responses{"x": true, "y": "true"})
		return res.RedFlags == 1.0
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatalf("property failed: %v", err)
	}
}

func TestComputeWeightNormalizationOverAnsweredItems(t *testing.T) {
	def := &domain.Indicator{
		ID: "4.2",
		Sections: []domain.Section{{ID: domain.SectionQuickAssessment, Items: []domain.Item{
			radio("q1", 0, 0.5, 1), radio("q2", 0, 0.5, 1), radio("q3", 0, 0.5, 1),
		}}},
		Scoring: &domain.Scoring{
			QuestionWeights: map[string]float64{"q1": 0.2, "q2": 0.3, "q3": 0.5},
			MaturityLevels:  levels(),
		},
	}
	scores := []float64{0, 0.5, 1}
	weights := []float64{0.2, 0.3, 0.5}
	ids := []string{"q1", "q2", "q3"}
	e := quietEngine()

	prop := func(mask, c1, c2, c3 uint8) bool {
		choices := []uint8{c1 % 3, c2 % 3, c3 % 3}
		resp := domain.Responses{}
		var num, den float64
		for i := range ids {
			if mask&(1<<i) == 0 {
				continue
			}
			resp[ids[i]] = string(rune('a' + choices[i]))
			num += scores[choices[i]] * weights[i]
			den += weights[i]
		}
		want := 0.0
		if den > 0 {
			want = num / den
		}
		got := e.Compute(def, resp).QuickAssessment
		return got >= 0 && got <= 1 && math.Abs(got-want) < 1e-9
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatalf("property failed: %v", err)
	}
}

func TestComputeWeightFallbacks(t *testing.T) {
	q1 := radio("q1", 0, 1)
	q1.Weight = f(3)
	q2 := radio("", 0, 1)
	def := &domain.Indicator{
		ID:       "5.5",
		Sections: []domain.Section{{ID: domain.SectionQuickAssessment, Items: []domain.Item{q1, q2}}},
		Scoring:  &domain.Scoring{MaturityLevels: levels()},
	}
	// q1 carries its own weight 3, q2 falls back to an equal share of 0.5.
	res := quietEngine().Compute(def, domain.Responses{"q1": "b", "s0_i1": "a"})
	want := 3.0 / 3.5
	if math.Abs(res.QuickAssessment-want) > 1e-9 {
		t.Fatalf("quick_assessment = %v, want %v", res.QuickAssessment, want)
	}
	if res.Details.QuickAssessmentBreakdown[1].Weight != 0.5 {
		t.Fatalf("expected equal-share weight 0.5, got %v", res.Details.QuickAssessmentBreakdown[1].Weight)
	}
}

func TestComputeEqualShareCountsUnscoredItems(t *testing.T) {
	q1 := radio("q1", 0, 1)
	q2 := radio("q2", 0, 1)
	note := domain.Item{ID: "note", Type: domain.ItemInput, Title: "Anything else?"}
	def := &domain.Indicator{
		ID:       "5.6",
		Sections: []domain.Section{{ID: domain.SectionQuickAssessment, Items: []domain.Item{q1, q2, note}}},
		Scoring: &domain.Scoring{
			QuestionWeights: map[string]float64{"q1": 0.5},
			MaturityLevels:  levels(),
		},
	}
	// q2 has no configured weight and takes 1/3, the note included in the count.
	res := quietEngine().Compute(def, domain.Responses{"q1": "b", "q2": "a", "note": "n/a"})
	if math.Abs(res.QuickAssessment-0.6) > 1e-9 {
		t.Fatalf("quick_assessment = %v, want 0.6", res.QuickAssessment)
	}
	if w := res.Details.QuickAssessmentBreakdown[1].Weight; math.Abs(w-1.0/3) > 1e-9 {
		t.Fatalf("q2 weight = %v, want 1/3", w)
	}
}

func TestComputeIgnoresUnknownOptionValues(t *testing.T) {
	res := quietEngine().Compute(twoQuestionDef(), domain.Responses{"q1": "zzz", "q2": true})
	if res.QuickAssessment != 0 || len(res.Details.QuickAssessmentBreakdown) != 0 {
		t.Fatalf("expected no contributions, got %+v", res)
	}
}

func TestComputeMissingQuickAssessmentSection(t *testing.T) {
	def := twoQuestionDef()
	def.Sections = def.Sections[1:]
	res := quietEngine().Compute(def, domain.Responses{"rf1": true})
	if res.QuickAssessment != 0 {
		t.Fatalf("quick_assessment = %v, want 0", res.QuickAssessment)
	}
	if math.Abs(res.FinalScore-0.18) > 1e-9 {
		t.Fatalf("final_score = %v, want 0.18", res.FinalScore)
	}
}

func TestComputeIdempotent(t *testing.T) {
	e := quietEngine()
	def := twoQuestionDef()
	resp := domain.Responses{"q1": "b", "rf2": true, "c1_f0": "monthly"}
	a := e.Compute(def, resp)
	b := e.Compute(def, resp)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("results differ:\n%+v\n%+v", a, b)
	}
}

func TestComputeUnscoredDefinitions(t *testing.T) {
	e := quietEngine()
	cases := map[string]*domain.Indicator{
		"nil":         nil,
		"no sections": {ID: "1.1", Scoring: &domain.Scoring{}},
		"no scoring":  {ID: "1.1", Sections: []domain.Section{}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			res := e.Compute(def, domain.Responses{"q1": "a"})
			if res.Scored {
				t.Fatal("expected unscored result")
			}
			if len(res.Warnings) == 0 {
				t.Fatal("expected a warning")
			}
			if res.Confidence != 0.5 {
				t.Fatalf("confidence = %v, want 0.5", res.Confidence)
			}
		})
	}
}

func TestConfidenceFollowsConversationCompletion(t *testing.T) {
	e := quietEngine()
	def := twoQuestionDef()

	cases := []struct {
		resp domain.Responses
		rate float64
		conf float64
	}{
		{domain.Responses{}, 0, 0.5},
		{domain.Responses{"c1_f0": "monthly", "c1_f1": "   "}, 0.5, 0.73},
		{domain.Responses{"c1_f0": "monthly", "c1_f1": "security team"}, 1, 0.95},
	}
	for _, tc := range cases {
		res := e.Compute(def, tc.resp)
		if res.Details.ConversationBreakdown.CompletionRate != tc.rate {
			t.Errorf("completion_rate = %v, want %v", res.Details.ConversationBreakdown.CompletionRate, tc.rate)
		}
		if res.Confidence != tc.conf {
			t.Errorf("confidence = %v, want %v", res.Confidence, tc.conf)
		}
		if res.FinalScore != 0 {
			t.Errorf("conversation answers must not move final_score, got %v", res.FinalScore)
		}
	}
}

func TestConversationSectionLookupOrder(t *testing.T) {
	cases := []struct {
		name     string
		sections []domain.Section
		want     int
	}{
		{"by id wins over type", []domain.Section{{Type: "conversation"}, {ID: "client-conversation"}}, 1},
		{"by type wins over title", []domain.Section{{Title: "Client interview"}, {Type: "conversation"}}, 1},
		{"by title conversation", []domain.Section{{Title: "Quick"}, {Title: "Guided Conversation"}}, 1},
		{"by title client", []domain.Section{{Title: "CLIENT notes"}}, 0},
		{"none", []domain.Section{{Title: "Quick"}}, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ConversationSection(&domain.Indicator{Sections: tc.sections})
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSubsectionFollowupKeys(t *testing.T) {
	def := &domain.Indicator{
		ID: "6.3",
		Sections: []domain.Section{
			{ID: domain.SectionQuickAssessment},
			{Type: "conversation", Subsections: []domain.Subsection{{Items: []domain.Item{
				{Type: domain.ItemQuestion, Followups: []domain.Followup{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}}},
			}}}},
		},
		Scoring: &domain.Scoring{MaturityLevels: levels()},
	}
	res := quietEngine().Compute(def, domain.Responses{"s1_sub0_i0_f0": "yes", "s1_sub0_i0_f3": "no"})
	cb := res.Details.ConversationBreakdown
	if cb.TotalQuestions != 4 || cb.AnsweredQuestions != 2 {
		t.Fatalf("unexpected conversation breakdown %+v", cb)
	}
}

func TestClassifyMonotonic(t *testing.T) {
	lv := levels()
	rank := map[string]int{domain.LevelGreen: 0, domain.LevelYellow: 1, domain.LevelRed: 2}
	prop := func(a, b uint16) bool {
		x, y := float64(a)/65535, float64(b)/65535
		if x > y {
			x, y = y, x
		}
		return rank[Classify(x, lv)] <= rank[Classify(y, lv)]
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatalf("property failed: %v", err)
	}
}

func TestClassifyBoundaries(t *testing.T) {
	lv := levels()
	cases := map[float64]string{0: "green", 0.33: "green", 0.335: "yellow", 0.66: "yellow", 0.661: "red", 1: "red"}
	for score, want := range cases {
		if got := Classify(score, lv); got != want {
			t.Errorf("Classify(%v) = %s, want %s", score, got, want)
		}
	}
}

func TestMissingMaturityLevelsUseDefaults(t *testing.T) {
	def := twoQuestionDef()
	def.Scoring.MaturityLevels = nil
	res := quietEngine().Compute(def, domain.Responses{"q1": "b", "q2": "b"})
	if res.MaturityLevel != domain.LevelYellow {
		t.Fatalf("maturity_level = %s, want yellow", res.MaturityLevel)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(0.35); got != 35 {
		t.Fatalf("Percent(0.35) = %v", got)
	}
	if got := Percent(0.12345); got != 12.3 {
		t.Fatalf("Percent(0.12345) = %v", got)
	}
}
