package policy

import (
	"errors"
	"fmt"
)

// Weights are the score contributions of each signal
type Weights struct {
	Unlisted    int `yaml:"unlisted" json:"unlisted"`
	Dangerous   int `yaml:"dangerous" json:"dangerous"`
	Sensitive   int `yaml:"sensitive" json:"sensitive"`
	BroadHost   int `yaml:"broad_host" json:"broad_host"`
	Provenance  int `yaml:"provenance" json:"provenance"`
	Disabled    int `yaml:"disabled" json:"disabled"` // subtracted, not added
	Blocklisted int `yaml:"blocklisted" json:"blocklisted"`
}

// Thresholds are the minimum scores for the warn and danger levels
type Thresholds struct {
	Warn   int `yaml:"warn" json:"warn"`
	Danger int `yaml:"danger" json:"danger"`
}

// Table is the static classification data the policy scores against
type Table struct {
	DangerousPermissions []string   `yaml:"dangerous_permissions" json:"dangerous_permissions"`
	SensitivePermissions []string   `yaml:"sensitive_permissions" json:"sensitive_permissions"`
	BroadHostPatterns    []string   `yaml:"broad_host_patterns" json:"broad_host_patterns"`
	Weights              Weights    `yaml:"weights" json:"weights"`
	Thresholds           Thresholds `yaml:"thresholds" json:"thresholds"`
}

// DefaultTable returns the built-in classification table
func DefaultTable() *Table {
	return &Table{
		DangerousPermissions: []string{
			"webRequestBlocking",
			"debugger",
			"proxy",
			"vpnProvider",
			"nativeMessaging",
		},
		SensitivePermissions: []string{
			"webRequest",
			"cookies",
			"history",
			"bookmarks",
			"clipboardRead",
			"clipboardWrite",
			"contentSettings",
			"privacy",
			"downloads",
			"browsingData",
		},
		BroadHostPatterns: []string{
			"<all_urls>",
			"*://*/*",
			"http://*/*",
			"https://*/*",
		},
		Weights: Weights{
			Unlisted:    3,
			Dangerous:   3,
			Sensitive:   1,
			BroadHost:   2,
			Provenance:  2,
			Disabled:    1,
			Blocklisted: 100,
		},
		Thresholds: Thresholds{
			Warn:   2,
			Danger: 5,
		},
	}
}

// Validate rejects tables that would break the verdict invariants: every
// scoring signal must raise the score, and the disabled dampener alone must
// not move a module from danger to safe.
func (t *Table) Validate() error {
	w := t.Weights
	for _, sig := range []struct {
		name  string
		value int
	}{
		{"unlisted", w.Unlisted},
		{"dangerous", w.Dangerous},
		{"sensitive", w.Sensitive},
		{"broad_host", w.BroadHost},
		{"provenance", w.Provenance},
		{"blocklisted", w.Blocklisted},
	} {
		if sig.value <= 0 {
			return fmt.Errorf("weight %s must be positive", sig.name)
		}
	}
	if w.Disabled < 0 {
		return errors.New("weight disabled must not be negative")
	}

	th := t.Thresholds
	if th.Warn < 0 {
		return errors.New("warn threshold must not be negative")
	}
	if th.Warn >= th.Danger {
		return fmt.Errorf("warn threshold %d must be below danger threshold %d", th.Warn, th.Danger)
	}
	if w.Disabled > th.Danger-th.Warn {
		return fmt.Errorf("weight disabled %d exceeds the gap between warn and danger thresholds (%d)", w.Disabled, th.Danger-th.Warn)
	}

	return nil
}
