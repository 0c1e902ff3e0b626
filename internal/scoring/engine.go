// Package scoring converts questionnaire responses into a vulnerability score
// for one indicator.
//
// The engine is a pure function of (definition, responses). It keeps no state
// between calls and never fails: a definition without sections or scoring
// configuration yields an unscored result and a logged warning.
package scoring

import (
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/xbeat/certicredia-sub001/internal/domain"
)

// Component weights of the final score. These are global policy and are not
// read from indicator definitions.
const (
	QuickAssessmentWeight = 0.70
	RedFlagsWeight        = 0.30
)

const (
	baseConfidence = 0.5
	confidenceSpan = 0.45
)

// DefaultMaturityLevels apply when a definition has scoring config but no levels.
var DefaultMaturityLevels = map[string]domain.MaturityLevel{
	domain.LevelGreen:  {ScoreRange: []float64{0, 0.33}, Color: "#2e7d32"},
	domain.LevelYellow: {ScoreRange: []float64{0.34, 0.66}, Color: "#f9a825"},
	domain.LevelRed:    {ScoreRange: []float64{0.67, 1}, Color: "#c62828"},
}

type Engine struct {
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{log: log}
}

// Compute scores responses against def. def is never modified.
func (e *Engine) Compute(def *domain.Indicator, responses domain.Responses) domain.ScoreResult {
	if def == nil {
		e.log.Warn("scoring skipped: no indicator definition")
		return unscored("indicator definition missing")
	}
	log := e.log.WithField("indicator_id", def.ID)
	if def.Sections == nil {
		log.Warn("scoring skipped: definition has no sections")
		return unscored("definition has no sections")
	}
	if def.Scoring == nil {
		log.Warn("scoring skipped: definition has no scoring config")
		return unscored("definition has no scoring config")
	}
	if responses == nil {
		responses = domain.Responses{}
	}

	res := domain.ScoreResult{Scored: true}
	res.QuickAssessment, res.Details.QuickAssessmentBreakdown = quickAssessment(def, responses)
	res.RedFlags, res.Details.RedFlagsList = redFlags(def, responses)
	res.Details.ConversationBreakdown = conversationCompletion(def, responses)

	res.FinalScore = res.QuickAssessment*QuickAssessmentWeight + res.RedFlags*RedFlagsWeight

	levels := def.Scoring.MaturityLevels
	if len(levels) == 0 {
		log.Warn("no maturity levels configured, using defaults")
		res.Warnings = append(res.Warnings, "maturity levels missing; defaults applied")
		levels = DefaultMaturityLevels
	}
	res.MaturityLevel = Classify(res.FinalScore, levels)
	res.Confidence = Confidence(res.Details.ConversationBreakdown.CompletionRate)
	return res
}

// Classify maps a final score onto green, yellow or red using the upper bound
// of each configured range.
func Classify(score float64, levels map[string]domain.MaturityLevel) string {
	if lvl, ok := levels[domain.LevelGreen]; ok {
		if upper, ok := lvl.Upper(); ok && score <= upper {
			return domain.LevelGreen
		}
	}
	if lvl, ok := levels[domain.LevelYellow]; ok {
		if upper, ok := lvl.Upper(); ok && score <= upper {
			return domain.LevelYellow
		}
	}
	return domain.LevelRed
}

// Confidence rises linearly with conversation completion from 0.5 to 0.95.
func Confidence(completionRate float64) float64 {
	return round(baseConfidence+completionRate*confidenceSpan, 2)
}

// Percent renders a [0,1] score as a percentage with one decimal.
func Percent(score float64) float64 {
	return round(score*100, 1)
}

// Zero is the result stored when an assessment is reset and no definition is
// available to score the empty response set.
func Zero() domain.ScoreResult {
	return domain.ScoreResult{
		MaturityLevel: domain.LevelGreen,
		Confidence:    baseConfidence,
		Scored:        true,
		Details:       emptyDetails(),
	}
}

func unscored(reason string) domain.ScoreResult {
	return domain.ScoreResult{
		Confidence: baseConfidence,
		Warnings:   []string{reason},
		Details:    emptyDetails(),
	}
}

func emptyDetails() domain.ScoreDetails {
	return domain.ScoreDetails{
		QuickAssessmentBreakdown: []domain.QuestionScore{},
		RedFlagsList:             []domain.RedFlag{},
	}
}

func quickAssessment(def *domain.Indicator, responses domain.Responses) (float64, []domain.QuestionScore) {
	breakdown := []domain.QuestionScore{}
	idx := sectionIndex(def, func(s domain.Section) bool { return s.ID == domain.SectionQuickAssessment })
	if idx < 0 {
		return 0, breakdown
	}

	// The fallback share splits over every item in the section, scored or not.
	var scored []keyedItem
	var items int
	walkSection(def.Sections[idx], idx, func(ki keyedItem) {
		items++
		if ki.item.Scored() {
			scored = append(scored, ki)
		}
	})
	if len(scored) == 0 {
		return 0, breakdown
	}
	equalShare := 1 / float64(items)

	var total, totalWeight float64
	for _, ki := range scored {
		answer, ok := responses.Text(ki.key)
		if !ok {
			continue
		}
		opt, ok := chosenOption(ki.item, answer)
		if !ok {
			continue
		}
		weight := questionWeight(def.Scoring, ki, equalShare)
		total += *opt.Score * weight
		totalWeight += weight

		label := opt.Label
		if label == "" {
			label = opt.Value
		}
		breakdown = append(breakdown, domain.QuestionScore{
			Key:           ki.key,
			Question:      ki.item.DisplayText(),
			Answer:        label,
			Score:         *opt.Score,
			Weight:        weight,
			WeightedScore: *opt.Score * weight,
		})
	}
	if totalWeight <= 0 {
		return 0, breakdown
	}
	return clamp01(total / totalWeight), breakdown
}

func questionWeight(cfg *domain.Scoring, ki keyedItem, equalShare float64) float64 {
	if cfg != nil && cfg.QuestionWeights != nil {
		if ki.item.ID != "" {
			if w, ok := cfg.QuestionWeights[ki.item.ID]; ok {
				return w
			}
		}
		if w, ok := cfg.QuestionWeights[ki.key]; ok {
			return w
		}
	}
	if ki.item.Weight != nil {
		return *ki.item.Weight
	}
	return equalShare
}

func chosenOption(item domain.Item, answer string) (domain.Option, bool) {
	for _, o := range item.Options {
		if o.Value == answer && o.Score != nil {
			return o, true
		}
	}
	return domain.Option{}, false
}

func redFlags(def *domain.Indicator, responses domain.Responses) (float64, []domain.RedFlag) {
	flags := []domain.RedFlag{}
	var total float64
	for s := range def.Sections {
		walkSection(def.Sections[s], s, func(ki keyedItem) {
			impact, ok := ki.item.Impact()
			if !ok || !responses.Checked(ki.key) {
				return
			}
			total += impact
			flags = append(flags, domain.RedFlag{
				Key:      ki.key,
				Flag:     ki.item.DisplayText(),
				Severity: ki.item.Severity,
				Impact:   impact,
			})
		})
	}
	return clamp01(math.Min(total, 1)), flags
}

func conversationCompletion(def *domain.Indicator, responses domain.Responses) domain.ConversationCompletion {
	idx := ConversationSection(def)
	if idx < 0 {
		return domain.ConversationCompletion{}
	}
	out := domain.ConversationCompletion{SectionID: def.Sections[idx].ID}
	walkSection(def.Sections[idx], idx, func(ki keyedItem) {
		if ki.item.Type != domain.ItemQuestion {
			return
		}
		for f := range ki.item.Followups {
			out.TotalQuestions++
			if answer, ok := responses.Text(domain.FollowupKey(ki.key, f)); ok && len(strings.TrimSpace(answer)) > 0 {
				out.AnsweredQuestions++
			}
		}
	})
	if out.TotalQuestions > 0 {
		out.CompletionRate = float64(out.AnsweredQuestions) / float64(out.TotalQuestions)
	}
	return out
}

// ConversationSection locates the client conversation section and returns its
// index, or -1. Lookup order: id "client-conversation", then type
// "conversation", then a title mentioning "conversation" or "client".
func ConversationSection(def *domain.Indicator) int {
	if idx := sectionIndex(def, func(s domain.Section) bool { return s.ID == domain.SectionClientConversation }); idx >= 0 {
		return idx
	}
	if idx := sectionIndex(def, func(s domain.Section) bool { return s.Type == domain.SectionTypeConversation }); idx >= 0 {
		return idx
	}
	return sectionIndex(def, func(s domain.Section) bool {
		title := strings.ToLower(s.Title)
		return strings.Contains(title, "conversation") || strings.Contains(title, "client")
	})
}

type keyedItem struct {
	item domain.Item
	key  string
}

func sectionIndex(def *domain.Indicator, match func(domain.Section) bool) int {
	for i, s := range def.Sections {
		if match(s) {
			return i
		}
	}
	return -1
}

// walkSection visits direct items then subsection items, resolving each key.
func walkSection(sec domain.Section, s int, fn func(keyedItem)) {
	for i, it := range sec.Items {
		fn(keyedItem{item: it, key: keyOf(it, s, -1, i)})
	}
	for sub, ss := range sec.Subsections {
		for i, it := range ss.Items {
			fn(keyedItem{item: it, key: keyOf(it, s, sub, i)})
		}
	}
}

func keyOf(it domain.Item, s, sub, i int) string {
	if it.Key != "" {
		return it.Key
	}
	return domain.ItemKey(s, sub, i, it.ID)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
