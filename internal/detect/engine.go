package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/goatkit/funcflow/internal/registry"
)

// DefaultThreshold is the minimum confidence (0-100) for a candidate to
// be proposed for execution.
const DefaultThreshold = 20

// Policy decides how many qualifying candidates are proposed for the
// same text span.
type Policy string

const (
	// PolicyTop proposes only the top-ranked candidate.
	PolicyTop Policy = "top"
	// PolicyAll proposes every candidate above the threshold.
	PolicyAll Policy = "all"
)

// Candidate is one proposed invocation with its normalized confidence.
// Args holds raw argument strings captured from the text, keyed by the
// function's declared parameter names.
type Candidate struct {
	Function   string            `json:"function"`
	Confidence int               `json:"confidence"`
	Args       map[string]string `json:"args,omitempty"`

	topKind   Kind
	topWeight int
}

// TopKind exposes the kind of the highest-weight matching rule, used by
// the deterministic tie-break.
func (c Candidate) TopKind() Kind { return c.topKind }

// Suggestion describes a likely function without executing it.
type Suggestion struct {
	Function   string `json:"function"`
	Confidence int    `json:"confidence"`
	Summary    string `json:"summary"`
	Signature  string `json:"signature"`
	Usage      string `json:"usage"`
}

// Engine evaluates detection rules against free text. Rules are cached
// per registry epoch and regenerated the first time a newer snapshot is
// observed, so scoring never consults rules from a superseded registry.
type Engine struct {
	store     *registry.Store
	threshold int
	policy    Policy

	mu    sync.Mutex
	rules *RuleSet
}

// NewEngine creates an engine over the registry store. threshold <= 0
// falls back to DefaultThreshold; an empty policy defaults to PolicyTop.
func NewEngine(store *registry.Store, threshold int, policy Policy) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if policy == "" {
		policy = PolicyTop
	}
	return &Engine{store: store, threshold: threshold, policy: policy}
}

// Threshold returns the configured confidence threshold.
func (e *Engine) Threshold() int { return e.threshold }

// ruleSet returns rules derived from the currently published registry.
func (e *Engine) ruleSet() *RuleSet {
	reg := e.store.Current()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rules == nil || e.rules.Epoch() != reg.Epoch() {
		e.rules = BuildRules(reg)
	}
	return e.rules
}

// Detect scores text against every rule and returns all candidates with
// a non-zero score, ordered by the deterministic tie-break: confidence,
// then top-rule specificity, then lexical function name.
func (e *Engine) Detect(text string) []Candidate {
	return e.ruleSet().Score(text)
}

// Propose returns the candidates that clear the threshold, trimmed to
// the configured per-span policy.
func (e *Engine) Propose(text string) []Candidate {
	var out []Candidate
	for _, c := range e.Detect(text) {
		if c.Confidence >= e.threshold {
			out = append(out, c)
		}
	}
	if e.policy == PolicyTop && len(out) > 1 {
		out = out[:1]
	}
	return out
}

// Suggest returns up to topN likely functions for the text, regardless
// of threshold, with a ready-to-edit usage tag.
func (e *Engine) Suggest(text string, topN int) []Suggestion {
	reg := e.store.Current()
	candidates := e.Detect(text)
	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}
	out := make([]Suggestion, 0, len(candidates))
	for _, c := range candidates {
		desc, ok := reg.Lookup(c.Function)
		if !ok {
			continue
		}
		out = append(out, Suggestion{
			Function:   c.Function,
			Confidence: c.Confidence,
			Summary:    desc.Summary,
			Signature:  desc.Signature(),
			Usage:      formatUsage(c, desc),
		})
	}
	return out
}

func formatUsage(c Candidate, desc *registry.Descriptor) string {
	if len(c.Args) == 0 {
		return fmt.Sprintf("<run:%s ...>", c.Function)
	}
	parts := make([]string, 0, len(c.Args))
	for _, p := range desc.ParamNames() {
		if v, ok := c.Args[p]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", p, v))
		}
	}
	return fmt.Sprintf("<run:%s %s>", c.Function, strings.Join(parts, " "))
}

// Score evaluates every rule against text and aggregates matched
// weights per function, normalized to 0-100 against the function's
// maximum possible weight. Pure computation, safe for concurrent use.
func (rs *RuleSet) Score(text string) []Candidate {
	lower := strings.ToLower(text)

	type tally struct {
		matched   int
		topWeight int
		topKind   Kind
		args      map[string]string
	}
	tallies := map[string]*tally{}

	for i := range rs.rules {
		rule := &rs.rules[i]
		m := rule.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		t := tallies[rule.Function]
		if t == nil {
			t = &tally{}
			tallies[rule.Function] = t
		}
		t.matched += rule.Weight
		if rule.Weight > t.topWeight {
			t.topWeight = rule.Weight
			t.topKind = rule.Kind
		}
		if rule.captures && len(m) > 1 && t.args == nil {
			t.args = captureArgs(m[1:], rs.params[rule.Function])
		}
	}

	candidates := make([]Candidate, 0, len(tallies))
	for fn, t := range tallies {
		max := rs.maxWeight[fn]
		if max == 0 {
			continue
		}
		confidence := int(math.Round(100 * float64(t.matched) / float64(max)))
		if confidence > 100 {
			confidence = 100
		}
		candidates = append(candidates, Candidate{
			Function:   fn,
			Confidence: confidence,
			Args:       t.args,
			topKind:    t.topKind,
			topWeight:  t.topWeight,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.topWeight != b.topWeight {
			return a.topWeight > b.topWeight
		}
		return a.Function < b.Function
	})
	return candidates
}

// captureArgs maps regex capture groups positionally onto the
// function's declared parameters.
func captureArgs(groups, params []string) map[string]string {
	if len(groups) == 0 || len(params) == 0 {
		return nil
	}
	args := map[string]string{}
	for i, g := range groups {
		if i >= len(params) {
			break
		}
		args[params[i]] = g
	}
	return args
}
