package category

import (
	"sort"
	"strings"

	"github.com/flipscout/appraisal-cli/internal/model"
)

const (
	noMatchConfidence  = 0.3
	baseConfidence     = 0.5
	perPointConfidence = 0.1
	maxConfidence      = 0.95
)

// Detector picks a canonical category for an item from its name and
// description. Detection sources are consulted in priority order: an
// explicit user hint, name-pattern overrides, an AI-supplied category,
// keyword scoring, and finally the general default.
type Detector struct {
	tables *Tables
}

// NewDetector creates a detector over the given tables. A nil tables value
// uses the embedded defaults.
func NewDetector(tables *Tables) *Detector {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Detector{tables: tables}
}

// Input carries everything available for detection. All fields are optional
// except Name.
type Input struct {
	Name        string
	Description string
	UserHint    string
	AICategory  string
}

// Detect resolves the item's category from the highest-priority source that
// produces one.
func (d *Detector) Detect(in Input) model.CategoryDetection {
	if in.UserHint != "" {
		return model.CategoryDetection{
			Category:   Normalize(in.UserHint),
			Confidence: maxConfidence,
			Keywords:   []string{},
			Source:     model.DetectionUserHint,
		}
	}

	if det, ok := d.detectByOverride(in.Name); ok {
		return det
	}

	if in.AICategory != "" {
		return model.CategoryDetection{
			Category:   Normalize(in.AICategory),
			Confidence: 0.9,
			Keywords:   []string{},
			Source:     model.DetectionAIVote,
		}
	}

	return d.DetectByKeywords(in.Name + " " + in.Description)
}

// detectByOverride checks name-pattern overrides in priority order.
func (d *Detector) detectByOverride(name string) (model.CategoryDetection, bool) {
	for _, ov := range d.tables.Overrides {
		if ov.re != nil && ov.re.MatchString(name) {
			return model.CategoryDetection{
				Category:   Normalize(ov.Category),
				Confidence: maxConfidence,
				Keywords:   []string{ov.Pattern},
				Source:     model.DetectionNameOverride,
			}, true
		}
	}
	return model.CategoryDetection{}, false
}

// DetectByKeywords scores the text against every category's keyword list.
// A matched phrase contributes its word count, so longer, more specific
// phrases outweigh single words. Ties prefer the longer canonical key.
func (d *Detector) DetectByKeywords(text string) model.CategoryDetection {
	cleaned := clean(text)
	if cleaned == "" {
		return noMatch()
	}
	tokens := tokenSet(cleaned)

	type candidate struct {
		category string
		score    int
		keywords []string
	}
	var candidates []candidate

	for cat, phrases := range d.tables.Keywords {
		var score int
		var matched []string
		for _, phrase := range phrases {
			if phraseMatches(cleaned, tokens, phrase) {
				score += len(strings.Fields(phrase))
				matched = append(matched, phrase)
			}
		}
		if score > 0 {
			sort.Strings(matched)
			candidates = append(candidates, candidate{category: cat, score: score, keywords: matched})
		}
	}

	if len(candidates) == 0 {
		return noMatch()
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		// Tie: a longer canonical key is the more specific category.
		if len(candidates[i].category) != len(candidates[j].category) {
			return len(candidates[i].category) > len(candidates[j].category)
		}
		return candidates[i].category < candidates[j].category
	})

	winner := candidates[0]
	confidence := baseConfidence + perPointConfidence*float64(winner.score)
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	return model.CategoryDetection{
		Category:   winner.category,
		Confidence: confidence,
		Keywords:   winner.keywords,
		Source:     model.DetectionKeyword,
	}
}

func noMatch() model.CategoryDetection {
	return model.CategoryDetection{
		Category:   General,
		Confidence: noMatchConfidence,
		Keywords:   []string{},
		Source:     model.DetectionDefault,
	}
}

// phraseMatches reports whether a keyword phrase is present in the text.
// Multi-word phrases match as substrings; single words must match a whole
// token so "car" never fires inside "cards".
func phraseMatches(cleaned string, tokens map[string]bool, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}
	if strings.Contains(phrase, " ") {
		return strings.Contains(cleaned, phrase)
	}
	return tokens[phrase]
}

func tokenSet(cleaned string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(cleaned) {
		set[f] = true
	}
	return set
}
