// Package detect scores free text against the loaded functions to
// propose invocations without an explicit tag.
//
// Rule derivation and rule evaluation are separate stages: rules are
// generated once per registry epoch from each descriptor's name,
// summary and declared hints, then evaluated as a pure scoring pass per
// question.
package detect

import (
	"regexp"
	"strings"

	"github.com/goatkit/funcflow/internal/registry"
)

// Kind classifies a detection rule. Weights are fixed per kind and
// reflect decreasing specificity: a regex hit on numeric phrasing says
// more than a stray keyword, which says more than a file extension.
type Kind string

const (
	KindRegex     Kind = "regex"
	KindKeyword   Kind = "keyword"
	KindExtension Kind = "extension"
)

const (
	weightRegex     = 10
	weightHint      = 8
	weightKeyword   = 5
	weightExtension = 3
)

// Rule is one derived pattern owned by a function. Rules are rebuilt
// whenever the owning descriptor is, and never persisted.
type Rule struct {
	Function string
	Kind     Kind
	Pattern  string
	Weight   int

	re       *regexp.Regexp
	captures bool
}

// arithmetic phrasing per category stem: digits, operator word, digits.
// Captures map positionally onto the function's declared parameters.
var arithmeticPatterns = map[string]string{
	"add":      `(\d+(?:\.\d+)?)\s*(?:\+|plus|add(?:ed)?(?:\s+to)?)\s*(\d+(?:\.\d+)?)`,
	"subtract": `(\d+(?:\.\d+)?)\s*(?:-|minus|subtract)\s*(\d+(?:\.\d+)?)`,
	"multiply": `(\d+(?:\.\d+)?)\s*(?:\*|×|times|multiplied\s+by)\s*(\d+(?:\.\d+)?)`,
	"divide":   `(\d+(?:\.\d+)?)\s*(?:/|÷|divided\s+by|over)\s*(\d+(?:\.\d+)?)`,
}

// file-extension rules for functions whose identity mentions a document
// domain.
var extensionPatterns = map[string]string{
	"excel":      `\.xlsx?\b`,
	"html":       `\.html?\b`,
	"powerpoint": `\.pptx?\b`,
	"csv":        `\.csv\b`,
	"pdf":        `\.pdf\b`,
}

// RuleSet holds the derived rules for one registry snapshot.
type RuleSet struct {
	epoch     uint64
	rules     []Rule
	maxWeight map[string]int
	params    map[string][]string
}

// Epoch reports which registry snapshot the rules were derived from.
func (rs *RuleSet) Epoch() uint64 { return rs.epoch }

// Rules returns the derived rules, primarily for inspection and tests.
func (rs *RuleSet) Rules() []Rule { return rs.rules }

// BuildRules derives the full rule set for a registry snapshot.
func BuildRules(reg *registry.Registry) *RuleSet {
	rs := &RuleSet{
		epoch:     reg.Epoch(),
		maxWeight: map[string]int{},
		params:    map[string][]string{},
	}
	for _, desc := range reg.Descriptors() {
		rs.params[desc.Name] = desc.ParamNames()
		for _, r := range deriveRules(desc) {
			rs.rules = append(rs.rules, r)
			rs.maxWeight[desc.Name] += r.Weight
		}
	}
	return rs
}

func deriveRules(desc *registry.Descriptor) []Rule {
	var rules []Rule
	seen := map[string]bool{}

	addKeyword := func(tok string, weight int) {
		tok = strings.ToLower(tok)
		if seen[tok] {
			return
		}
		seen[tok] = true
		pattern := `\b` + regexp.QuoteMeta(tok) + `\b`
		rules = append(rules, Rule{
			Function: desc.Name,
			Kind:     KindKeyword,
			Pattern:  pattern,
			Weight:   weight,
			re:       regexp.MustCompile(`(?i)` + pattern),
		})
	}

	// Declared hints outrank derived keywords.
	for _, hint := range desc.Hints {
		addKeyword(hint, weightHint)
	}
	for _, tok := range nameTokens(desc.Name) {
		addKeyword(tok, weightKeyword)
	}
	for _, tok := range summaryTokens(desc.Summary) {
		addKeyword(tok, weightKeyword)
	}

	identity := strings.ToLower(desc.Name + " " + desc.Summary)

	for stem, pattern := range arithmeticPatterns {
		if strings.Contains(identity, stem) {
			rules = append(rules, Rule{
				Function: desc.Name,
				Kind:     KindRegex,
				Pattern:  pattern,
				Weight:   weightRegex,
				re:       regexp.MustCompile(`(?i)` + pattern),
				captures: true,
			})
		}
	}

	for domain, pattern := range extensionPatterns {
		if strings.Contains(identity, domain) {
			rules = append(rules, Rule{
				Function: desc.Name,
				Kind:     KindExtension,
				Pattern:  pattern,
				Weight:   weightExtension,
				re:       regexp.MustCompile(`(?i)` + pattern),
			})
		}
	}

	return rules
}

// nameTokens splits "finance/roi_calc" into ["finance", "roi", "calc"],
// dropping tokens too short to be meaningful.
func nameTokens(name string) []string {
	var toks []string
	for _, tok := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '/' || r == '_' || r == '-'
	}) {
		if len(tok) >= 3 && tok != DefaultStopword {
			toks = append(toks, tok)
		}
	}
	return toks
}

// DefaultStopword is excluded from name-derived keywords: every file's
// entry point is called run, so it identifies nothing.
const DefaultStopword = "run"

var wordRe = regexp.MustCompile(`[a-z]{4,}`)

var summaryStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "into": true,
	"returns": true, "return": true, "given": true, "value": true,
	"values": true, "function": true, "result": true, "their": true,
}

func summaryTokens(summary string) []string {
	var toks []string
	for _, tok := range wordRe.FindAllString(strings.ToLower(summary), -1) {
		if !summaryStopwords[tok] {
			toks = append(toks, tok)
		}
	}
	return toks
}
