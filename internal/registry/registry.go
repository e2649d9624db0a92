package registry

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/exttrust/exttrust/internal/inventory"
)

// DefaultURL is the Chrome Web Store update-check endpoint
const DefaultURL = "https://clients2.google.com/service/update2/crx"

// unknownAppMarker appears in the update-check response when the store has
// never heard of the requested id
const unknownAppMarker = "error-unknownApplication"

// maxResponseSize caps how much of an update-check reply is inspected. A
// single-app reply is a few hundred bytes.
const maxResponseSize = 64 << 10

// Unlisted is the set of module ids confirmed absent from the registry
type Unlisted map[string]bool

// Checker queries the registry to find modules that are not published there
type Checker struct {
	client      *http.Client
	baseURL     string
	prodVersion string
	concurrency int
}

// New creates a presence checker. A concurrency of 0 launches every query at
// once.
func New(baseURL, prodVersion string, concurrency int, timeout time.Duration) *Checker {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Checker{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:     baseURL,
		prodVersion: prodVersion,
		concurrency: concurrency,
	}
}

// FindUnlisted returns the ids of modules confirmed absent from the registry.
// Development and sideloaded modules are not queried. A failed query counts
// as present. The call returns once every query has resolved.
func (c *Checker) FindUnlisted(ctx context.Context, modules []inventory.Module) Unlisted {
	var (
		mu       sync.Mutex
		unlisted = make(Unlisted)
	)

	g := new(errgroup.Group)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}

	for _, m := range modules {
		if m.Provenance == inventory.ProvenanceDevelopment || m.Provenance == inventory.ProvenanceSideload {
			continue
		}

		m := m
		g.Go(func() error {
			if c.isUnlisted(ctx, m.ID) {
				mu.Lock()
				unlisted[m.ID] = true
				mu.Unlock()
			}
			return nil
		})
	}

	g.Wait()
	return unlisted
}

// isUnlisted performs one update check. Anything other than a 2xx reply
// carrying the registry's unknown-application error is treated as listed.
func (c *Checker) isUnlisted(ctx context.Context, id string) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.queryURL(id), nil)
	if err != nil {
		log.Printf("Presence check for %s: %v", id, err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("Presence check for %s failed, assuming listed: %v", id, err)
		return false
	}
	defer resp.Body.Close()

	// The marker is only meaningful in an update-check reply. Error pages from
	// proxies or rate limiting count as present.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Presence check for %s returned status %d, assuming listed", id, resp.StatusCode)
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		log.Printf("Presence check for %s failed, assuming listed: %v", id, err)
		return false
	}

	return strings.Contains(string(body), unknownAppMarker)
}

// queryURL builds the update-check URL for one id
func (c *Checker) queryURL(id string) string {
	x := url.Values{}
	x.Set("id", id)
	x.Set("installsource", "ondemand")

	q := url.Values{}
	q.Set("response", "updatecheck")
	q.Set("acceptformat", "crx2,crx3")
	q.Set("prodversion", c.prodVersion)
	q.Set("x", x.Encode()+"&uc")

	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + q.Encode()
}
