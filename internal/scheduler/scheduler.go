package scheduler

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/exttrust/exttrust/internal/analysis"
	"github.com/exttrust/exttrust/internal/policy"
)

// Scanner runs one trust analysis scan
type Scanner interface {
	Scan(ctx context.Context) (*analysis.Result, error)
}

// Scheduler runs periodic watch scans and logs risky modules
type Scheduler struct {
	scanner  Scanner
	interval time.Duration
	logf     func(format string, args ...any)
}

// New creates a new scheduler
func New(scanner Scanner, interval time.Duration) *Scheduler {
	return &Scheduler{
		scanner:  scanner,
		interval: interval,
		logf:     log.Printf,
	}
}

// Start runs a scan immediately and then on every tick until ctx is done
func (s *Scheduler) Start(ctx context.Context) error {
	log.Printf("Scheduler starting (interval %s)", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runScan(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler stopping")
			return nil
		case <-ticker.C:
			s.runScan(ctx)
		}
	}
}

// runScan performs one scan and reports every module at danger or above.
// It returns the number of modules reported.
func (s *Scheduler) runScan(ctx context.Context) int {
	result, err := s.scanner.Scan(ctx)
	if err != nil {
		s.logf("Watch scan failed: %v", err)
		return 0
	}

	reported := 0
	for _, item := range result.Items {
		if item.Verdict.Level < policy.LevelDanger {
			continue
		}
		s.logf("Risky extension %s (%s v%s): %s, score %d: %s",
			item.Module.ID, item.Module.Name, item.Module.Version,
			item.Verdict.Level, item.Verdict.Score, strings.Join(item.Verdict.Reasons, "; "))
		reported++
	}

	s.logf("Watch scan complete: %d safe, %d warnings, %d dangerous",
		result.Summary.Safe, result.Summary.Warn, result.Summary.Danger)

	return reported
}
