package blocklist

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

//go:embed snapshot.json
var bundledSnapshot []byte

// Entry is one known-malicious module
type Entry struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Source resolves the blocklist, preferring a remote copy and falling back
// to a bundled snapshot
type Source struct {
	client       *http.Client
	remoteURL    string
	snapshotPath string
}

// New creates a blocklist source. An empty remoteURL skips the network and
// an empty snapshotPath uses the snapshot embedded in the binary.
func New(remoteURL, snapshotPath string, timeout time.Duration) *Source {
	return &Source{
		client: &http.Client{
			Timeout: timeout,
		},
		remoteURL:    remoteURL,
		snapshotPath: snapshotPath,
	}
}

// Load returns the blocklist entries. It never fails: every failure degrades
// to the snapshot and then to an empty list.
func (s *Source) Load(ctx context.Context) []Entry {
	if s.remoteURL != "" {
		entries, err := s.fetchRemote(ctx)
		if err == nil {
			return entries
		}
		log.Printf("Remote blocklist unavailable, using snapshot: %v", err)
	}

	entries, err := s.readSnapshot()
	if err != nil {
		log.Printf("Blocklist snapshot unavailable: %v", err)
		return []Entry{}
	}

	return entries
}

// fetchRemote downloads the authoritative list, bypassing HTTP caches
func (s *Source) fetchRemote(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.remoteURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("blocklist returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}

	return parse(data)
}

func (s *Source) readSnapshot() ([]Entry, error) {
	if s.snapshotPath == "" {
		return parse(bundledSnapshot)
	}

	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	return parse(data)
}

// parse decodes a JSON array of entries, dropping entries without an id
func parse(data []byte) ([]Entry, error) {
	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse blocklist: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("parse blocklist: expected a JSON array")
	}

	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		if e.ID != "" {
			entries = append(entries, e)
		}
	}

	return entries, nil
}

// Index builds an id lookup. When an id appears more than once the first
// entry wins.
func Index(entries []Entry) map[string]Entry {
	index := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if _, exists := index[e.ID]; !exists {
			index[e.ID] = e
		}
	}
	return index
}
