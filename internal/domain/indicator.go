package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Item types as authored in indicator definitions.
const (
	ItemRadioGroup = "radio-group"
	ItemRadioList  = "radio-list"
	ItemCheckbox   = "checkbox"
	ItemInput      = "input"
	ItemQuestion   = "question"
)

// Well-known section ids.
const (
	SectionQuickAssessment    = "quick-assessment"
	SectionClientConversation = "client-conversation"
	SectionTypeConversation   = "conversation"
)

// Indicator is the read-only definition of one of the 100 indicators.
type Indicator struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title,omitempty" yaml:"title,omitempty"`
	Category string    `json:"category,omitempty" yaml:"category,omitempty"`
	Sections []Section `json:"sections" yaml:"sections"`
	Scoring  *Scoring  `json:"scoring,omitempty" yaml:"scoring,omitempty"`
}

type Section struct {
	ID          string       `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string       `json:"title,omitempty" yaml:"title,omitempty"`
	Type        string       `json:"type,omitempty" yaml:"type,omitempty"`
	Items       []Item       `json:"items,omitempty" yaml:"items,omitempty"`
	Subsections []Subsection `json:"subsections,omitempty" yaml:"subsections,omitempty"`
}

type Subsection struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Items []Item `json:"items,omitempty" yaml:"items,omitempty"`
}

// Item is one form element. Which fields are meaningful depends on Type.
type Item struct {
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	Type        string     `json:"type" yaml:"type"`
	Title       string     `json:"title,omitempty" yaml:"title,omitempty"`
	Text        string     `json:"text,omitempty" yaml:"text,omitempty"`
	Label       string     `json:"label,omitempty" yaml:"label,omitempty"`
	Weight      *float64   `json:"weight,omitempty" yaml:"weight,omitempty"`
	Severity    string     `json:"severity,omitempty" yaml:"severity,omitempty"`
	ScoreImpact *float64   `json:"score_impact,omitempty" yaml:"score_impact,omitempty"`
	Options     []Option   `json:"options,omitempty" yaml:"options,omitempty"`
	Followups   []Followup `json:"followups,omitempty" yaml:"followups,omitempty"`

	// Key is the stable response address assigned when the definition is loaded.
	Key string `json:"key,omitempty" yaml:"-"`
}

type Option struct {
	Value string   `json:"value" yaml:"value"`
	Label string   `json:"label,omitempty" yaml:"label,omitempty"`
	Score *float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

type Followup struct {
	Text string `json:"text" yaml:"text"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Scoring is the per-indicator scoring configuration.
type Scoring struct {
	Method          string                   `json:"method,omitempty" yaml:"method,omitempty"`
	QuestionWeights map[string]float64       `json:"question_weights,omitempty" yaml:"question_weights,omitempty"`
	MaturityLevels  map[string]MaturityLevel `json:"maturity_levels,omitempty" yaml:"maturity_levels,omitempty"`
}

type MaturityLevel struct {
	ScoreRange  []float64 `json:"score_range" yaml:"score_range"`
	Color       string    `json:"color,omitempty" yaml:"color,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Upper returns the inclusive upper bound of the range.
func (m MaturityLevel) Upper() (float64, bool) {
	if len(m.ScoreRange) != 2 {
		return 0, false
	}
	return m.ScoreRange[1], true
}

// DisplayText returns the first non-empty of title, text and label.
func (it Item) DisplayText() string {
	for _, s := range []string{it.Title, it.Text, it.Label} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Scored reports whether the item is a single-choice question with scored options.
func (it Item) Scored() bool {
	if it.Type != ItemRadioGroup && it.Type != ItemRadioList {
		return false
	}
	for _, o := range it.Options {
		if o.Score != nil {
			return true
		}
	}
	return false
}

// Impact is the red-flag contribution of a severity-bearing item.
func (it Item) Impact() (float64, bool) {
	if it.Severity == "" {
		return 0, false
	}
	switch {
	case it.ScoreImpact != nil:
		return *it.ScoreImpact, true
	case it.Weight != nil:
		return *it.Weight, true
	}
	return 0, true
}

// ItemKey builds the positional response address for an item. An explicit id
// always wins. sub < 0 means the item sits directly in the section.
func ItemKey(section, sub, item int, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if sub < 0 {
		return fmt.Sprintf("s%d_i%d", section, item)
	}
	return fmt.Sprintf("s%d_sub%d_i%d", section, sub, item)
}

// FollowupKey builds the address of the n-th followup of an item.
func FollowupKey(itemKey string, n int) string {
	return fmt.Sprintf("%s_f%d", itemKey, n)
}

// ParseIndicatorID splits "<category>.<index>" and checks both are within 1..10.
func ParseIndicatorID(id string) (category, index int, err error) {
	cat, idx, ok := strings.Cut(id, ".")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidIndicatorID, id)
	}
	category, err = strconv.Atoi(cat)
	if err != nil || category < 1 || category > Categories {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidIndicatorID, id)
	}
	index, err = strconv.Atoi(idx)
	if err != nil || index < 1 || index > IndicatorsPerCategory {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidIndicatorID, id)
	}
	return category, index, nil
}

// CategoryOf returns the first path segment of an indicator id.
func CategoryOf(id string) string {
	cat, _, _ := strings.Cut(id, ".")
	return cat
}
