// Package indicator loads indicator definitions and prepares them for scoring.
//
// Definitions are hand-authored JSON or YAML documents. Preparing a definition
// assigns every item a stable response key once, at load time, so scoring and
// reporting never recompute addresses from array positions on their own.
package indicator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xbeat/certicredia-sub001/internal/domain"
)

// partitionTolerance absorbs hand-authored ranges such as [0,0.33],[0.34,0.66].
const partitionTolerance = 0.01 + 1e-9

var ErrInvalidDefinition = errors.New("invalid indicator definition")

// Decode parses a definition. YAML is used for .yaml/.yml names, JSON otherwise.
func Decode(name string, data []byte) (*domain.Indicator, error) {
	var def domain.Indicator
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	default:
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return &def, nil
}

// Prepare assigns stable keys to every item in place and validates the
// definition. Items with an explicit id keep it as their key.
func Prepare(def *domain.Indicator) error {
	if _, _, err := domain.ParseIndicatorID(def.ID); err != nil {
		return err
	}
	AssignKeys(def)
	if def.Scoring != nil && len(def.Scoring.MaturityLevels) > 0 {
		if err := ValidateMaturityLevels(def.Scoring.MaturityLevels); err != nil {
			return fmt.Errorf("indicator %s: %w", def.ID, err)
		}
	}
	return nil
}

// AssignKeys fills Item.Key for every item that does not carry one yet.
func AssignKeys(def *domain.Indicator) {
	for s := range def.Sections {
		sec := &def.Sections[s]
		for i := range sec.Items {
			if sec.Items[i].Key == "" {
				sec.Items[i].Key = domain.ItemKey(s, -1, i, sec.Items[i].ID)
			}
		}
		for sub := range sec.Subsections {
			items := sec.Subsections[sub].Items
			for i := range items {
				if items[i].Key == "" {
					items[i].Key = domain.ItemKey(s, sub, i, items[i].ID)
				}
			}
		}
	}
}

// ValidateMaturityLevels checks that exactly the green, yellow and red levels
// are configured and that their ranges partition [0,1] without overlaps and
// without gaps wider than the authoring tolerance.
func ValidateMaturityLevels(levels map[string]domain.MaturityLevel) error {
	type span struct {
		name     string
		min, max float64
	}
	if len(levels) == 0 {
		return nil
	}
	for _, name := range []string{domain.LevelGreen, domain.LevelYellow, domain.LevelRed} {
		if _, ok := levels[name]; !ok {
			return fmt.Errorf("%w: maturity level %q is missing", ErrInvalidDefinition, name)
		}
	}
	if len(levels) != 3 {
		return fmt.Errorf("%w: only green, yellow and red maturity levels are supported", ErrInvalidDefinition)
	}
	spans := make([]span, 0, len(levels))
	for name, lvl := range levels {
		if len(lvl.ScoreRange) != 2 {
			return fmt.Errorf("%w: level %q needs a [min,max] score_range", ErrInvalidDefinition, name)
		}
		if lvl.ScoreRange[0] > lvl.ScoreRange[1] {
			return fmt.Errorf("%w: level %q has min > max", ErrInvalidDefinition, name)
		}
		spans = append(spans, span{name, lvl.ScoreRange[0], lvl.ScoreRange[1]})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].min < spans[j].min })

	if math.Abs(spans[0].min) > 1e-9 {
		return fmt.Errorf("%w: levels start at %.2f, not 0", ErrInvalidDefinition, spans[0].min)
	}
	if math.Abs(spans[len(spans)-1].max-1) > 1e-9 {
		return fmt.Errorf("%w: levels end at %.2f, not 1", ErrInvalidDefinition, spans[len(spans)-1].max)
	}
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if cur.min < prev.max {
			return fmt.Errorf("%w: levels %q and %q overlap", ErrInvalidDefinition, prev.name, cur.name)
		}
		if cur.min-prev.max > partitionTolerance {
			return fmt.Errorf("%w: gap between %q and %q", ErrInvalidDefinition, prev.name, cur.name)
		}
	}
	return nil
}
