package classifier

import (
	"context"
	"regexp"
	"strings"
)

// categoryList maps harm categories to their trigger terms. Matching is
// whole-word and case-insensitive.
var categoryLists = []struct {
	category string
	words    []string
}{
	{"violence", []string{"kill", "murder", "assault", "bomb", "attack", "shoot"}},
	{"self-harm", []string{"suicide", "self-harm", "overdose"}},
	{"hate", []string{"slur", "racist", "genocide"}},
	{"weapons", []string{"explosive", "firearm", "nerve agent", "bioweapon"}},
	{"illegal-activity", []string{"launder", "counterfeit", "smuggle"}},
}

// KeywordScorer is the heuristic harmful-content backend: a compiled
// word list per category, scored 1.0 on any hit. It needs no network
// and is the fallback when no ML backend is configured.
type KeywordScorer struct {
	categories []categoryMatcher
}

type categoryMatcher struct {
	category string
	regex    *regexp.Regexp
}

// NewKeywordScorer compiles the built-in category word lists
func NewKeywordScorer() *KeywordScorer {
	s := &KeywordScorer{}
	for _, list := range categoryLists {
		pattern := `(?i)\b(` + strings.Join(list.words, "|") + `)\b`
		s.categories = append(s.categories, categoryMatcher{
			category: list.category,
			regex:    regexp.MustCompile(pattern),
		})
	}
	return s
}

// Score implements interfaces.Classifier. Any category hit scores 1.0
// so that every meaningful threshold in (0,1] blocks; clean text scores
// 0.0 with no category.
func (s *KeywordScorer) Score(ctx context.Context, text string) (float64, string, error) {
	for _, c := range s.categories {
		if c.regex.MatchString(text) {
			return 1.0, c.category, nil
		}
	}
	return 0.0, "", nil
}

// Name implements interfaces.Classifier
func (s *KeywordScorer) Name() string {
	return "keyword"
}
