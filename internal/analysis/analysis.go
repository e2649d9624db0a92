package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exttrust/exttrust/internal/blocklist"
	"github.com/exttrust/exttrust/internal/inventory"
	"github.com/exttrust/exttrust/internal/policy"
	"github.com/exttrust/exttrust/internal/registry"
)

// ErrInventoryUnavailable is returned when the module inventory could not be
// obtained. It is the only failure a scan surfaces.
var ErrInventoryUnavailable = errors.New("inventory unavailable")

// BlocklistLoader resolves the current blocklist. It must not fail.
type BlocklistLoader interface {
	Load(ctx context.Context) []blocklist.Entry
}

// PresenceChecker finds modules that are missing from the external registry
type PresenceChecker interface {
	FindUnlisted(ctx context.Context, modules []inventory.Module) registry.Unlisted
}

// Engine runs trust analysis scans
type Engine struct {
	inventory inventory.Source
	blocklist BlocklistLoader
	presence  PresenceChecker
	policy    *policy.Policy
	selfID    string
}

// New creates a new engine. selfID is the host application's own module id,
// which is never scored.
func New(inv inventory.Source, bl BlocklistLoader, presence PresenceChecker, pol *policy.Policy, selfID string) *Engine {
	return &Engine{
		inventory: inv,
		blocklist: bl,
		presence:  presence,
		policy:    pol,
		selfID:    selfID,
	}
}

// Item pairs a module with its verdict
type Item struct {
	Module  inventory.Module `json:"module"`
	Verdict policy.Verdict   `json:"verdict"`
}

// Summary tallies verdicts by level. Blocklisted modules also count as danger.
type Summary struct {
	Safe        int `json:"safe"`
	Warn        int `json:"warn"`
	Danger      int `json:"danger"`
	Blocklisted int `json:"blocklisted"`
}

// Result is the outcome of one scan
type Result struct {
	ID        uuid.UUID     `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
	Items     []Item        `json:"items"`
	Summary   Summary       `json:"summary"`
}

// Scan lists the installed modules, loads the blocklist and checks registry
// presence concurrently, then scores every module. Items are ordered by
// descending score; ties keep inventory order.
func (e *Engine) Scan(ctx context.Context) (*Result, error) {
	startTime := time.Now()
	scanID := uuid.New()

	all, err := e.inventory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInventoryUnavailable, err)
	}
	modules := e.candidates(all)

	// Launched lookups run to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	var (
		wg       sync.WaitGroup
		entries  []blocklist.Entry
		unlisted registry.Unlisted
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		entries = e.blocklist.Load(ctx)
	}()
	go func() {
		defer wg.Done()
		unlisted = e.presence.FindUnlisted(ctx, modules)
	}()
	wg.Wait()

	index := blocklist.Index(entries)
	items := make([]Item, len(modules))
	for i, m := range modules {
		var entry *blocklist.Entry
		if hit, ok := index[m.ID]; ok {
			entry = &hit
		}
		items[i] = Item{
			Module:  m,
			Verdict: e.policy.Evaluate(m, entry, unlisted[m.ID]),
		}
	}

	slices.SortStableFunc(items, func(a, b Item) int {
		return b.Verdict.Score - a.Verdict.Score
	})

	result := &Result{
		ID:        scanID,
		StartedAt: startTime,
		Duration:  time.Since(startTime),
		Items:     items,
		Summary:   Summarize(items),
	}

	log.Printf("Scan %s: %d modules, %d blocklist entries, %d unlisted (%s)",
		scanID, len(items), len(entries), len(unlisted), result.Duration.Round(time.Millisecond))

	return result, nil
}

// candidates drops the host application itself and anything tagged as
// something other than an extension (themes, apps)
func (e *Engine) candidates(all []inventory.Module) []inventory.Module {
	modules := make([]inventory.Module, 0, len(all))
	for _, m := range all {
		if m.Kind != "" && m.Kind != inventory.KindExtension {
			continue
		}
		if e.selfID != "" && m.ID == e.selfID {
			continue
		}
		modules = append(modules, m)
	}
	return modules
}

// Summarize tallies items by level
func Summarize(items []Item) Summary {
	var s Summary
	for _, it := range items {
		switch it.Verdict.Level {
		case policy.LevelSafe:
			s.Safe++
		case policy.LevelWarn:
			s.Warn++
		case policy.LevelBlocklisted:
			s.Blocklisted++
			s.Danger++
		default:
			s.Danger++
		}
	}
	return s
}
