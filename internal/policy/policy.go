package policy

import (
	"fmt"

	"bitbucket.org/creachadair/stringset"

	"github.com/exttrust/exttrust/internal/blocklist"
	"github.com/exttrust/exttrust/internal/inventory"
)

// Reason texts shared with the presentation layer
const (
	ReasonUnlisted       = "not found in the external registry"
	ReasonNoIndicators   = "no suspicious indicators found"
	reasonKnownMalicious = "Known malicious: "
)

// Verdict is the risk assessment for one module
type Verdict struct {
	Level   Level    `json:"level"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// finding is a single signal's contribution
type finding struct {
	delta  int
	reason string
}

// signal inspects one aspect of a module and reports zero or more findings
type signal func(p *Policy, m *inventory.Module, unlisted bool) []finding

// signals run in this order; reasons keep the same order
var signals = []signal{
	unlistedSignal,
	dangerousSignal,
	sensitiveSignal,
	broadHostSignal,
	provenanceSignal,
}

// Policy evaluates modules against a compiled Table
type Policy struct {
	table     Table
	dangerous stringset.Set
	sensitive stringset.Set
	broadHost stringset.Set
}

// New compiles a table into a policy
func New(t *Table) (*Policy, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy table: %w", err)
	}

	return &Policy{
		table:     *t,
		dangerous: stringset.New(t.DangerousPermissions...),
		sensitive: stringset.New(t.SensitivePermissions...),
		broadHost: stringset.New(t.BroadHostPatterns...),
	}, nil
}

// Default returns the policy for the built-in table
func Default() *Policy {
	p, err := New(DefaultTable())
	if err != nil {
		panic(err)
	}
	return p
}

// Table returns a copy of the table the policy was built from
func (p *Policy) Table() Table {
	return p.table
}

// Evaluate scores one module. A blocklist entry overrides every other signal.
func (p *Policy) Evaluate(m inventory.Module, entry *blocklist.Entry, unlisted bool) Verdict {
	if entry != nil {
		return Verdict{
			Level:   LevelBlocklisted,
			Score:   p.table.Weights.Blocklisted,
			Reasons: []string{reasonKnownMalicious + entry.Reason},
		}
	}

	score := 0
	reasons := make([]string, 0)
	for _, sig := range signals {
		for _, f := range sig(p, &m, unlisted) {
			score += f.delta
			reasons = append(reasons, f.reason)
		}
	}

	if !m.Enabled {
		score = max(0, score-p.table.Weights.Disabled)
	}

	if len(reasons) == 0 {
		reasons = append(reasons, ReasonNoIndicators)
	}

	return Verdict{
		Level:   p.classify(score),
		Score:   score,
		Reasons: reasons,
	}
}

func (p *Policy) classify(score int) Level {
	switch {
	case score >= p.table.Thresholds.Danger:
		return LevelDanger
	case score >= p.table.Thresholds.Warn:
		return LevelWarn
	default:
		return LevelSafe
	}
}

func unlistedSignal(p *Policy, _ *inventory.Module, unlisted bool) []finding {
	if !unlisted {
		return nil
	}
	return []finding{{delta: p.table.Weights.Unlisted, reason: ReasonUnlisted}}
}

func dangerousSignal(p *Policy, m *inventory.Module, _ bool) []finding {
	return match(m.Permissions, p.dangerous, p.table.Weights.Dangerous, "Dangerous permission: ")
}

func sensitiveSignal(p *Policy, m *inventory.Module, _ bool) []finding {
	return match(m.Permissions, p.sensitive, p.table.Weights.Sensitive, "Sensitive permission: ")
}

func broadHostSignal(p *Policy, m *inventory.Module, _ bool) []finding {
	return match(m.HostPermissions, p.broadHost, p.table.Weights.BroadHost, "Broad host access: ")
}

func provenanceSignal(p *Policy, m *inventory.Module, _ bool) []finding {
	if m.Provenance != inventory.ProvenanceDevelopment && m.Provenance != inventory.ProvenanceSideload {
		return nil
	}
	return []finding{{
		delta:  p.table.Weights.Provenance,
		reason: fmt.Sprintf("Install type: %s (not from store)", m.Provenance),
	}}
}

// match emits one finding per token that is in set, in token order
func match(tokens []string, set stringset.Set, weight int, prefix string) []finding {
	var findings []finding
	for _, tok := range tokens {
		if set.Contains(tok) {
			findings = append(findings, finding{delta: weight, reason: prefix + tok})
		}
	}
	return findings
}
