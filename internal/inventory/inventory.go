package inventory

import (
	"context"
	"strings"
)

// Provenance describes how a module was installed
type Provenance string

const (
	ProvenanceStore       Provenance = "store"
	ProvenanceDevelopment Provenance = "development"
	ProvenanceSideload    Provenance = "sideload"
	ProvenanceOther       Provenance = "other"
)

// ParseProvenance maps a provenance tag to a Provenance. It accepts both our
// own names and the browser's installType names ("normal", "admin").
func ParseProvenance(s string) Provenance {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "store", "normal":
		return ProvenanceStore
	case "development":
		return ProvenanceDevelopment
	case "sideload":
		return ProvenanceSideload
	default:
		return ProvenanceOther
	}
}

// Kind is the type tag of an installed module
type Kind string

const (
	KindExtension Kind = "extension"
	KindTheme     Kind = "theme"
	KindApp       Kind = "app"
)

// ParseKind maps a type tag to a Kind. Hosted, packaged and legacy packaged
// apps all collapse into KindApp.
func ParseKind(s string) Kind {
	switch s = strings.ToLower(strings.TrimSpace(s)); {
	case s == "theme":
		return KindTheme
	case s == "app" || strings.HasSuffix(s, "_app"):
		return KindApp
	default:
		return KindExtension
	}
}

// Module represents one installed module as reported by an inventory source
type Module struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description,omitempty"`
	Enabled         bool              `json:"enabled"`
	Provenance      Provenance        `json:"provenance"`
	Kind            Kind              `json:"kind"`
	Permissions     []string          `json:"permissions"`
	HostPermissions []string          `json:"host_permissions"`
	Icons           map[string]string `json:"icons,omitempty"` // size -> relative path
}

// Source lists all installed modules with their metadata
type Source interface {
	List(ctx context.Context) ([]Module, error)
}

// isHostPattern reports whether a manifest permission entry is a match
// pattern rather than an API permission.
func isHostPattern(p string) bool {
	return p == "<all_urls>" || strings.Contains(p, "://")
}

// splitPermissions separates API permissions from host match patterns and
// removes duplicates while keeping manifest order.
func splitPermissions(permissions, hostPermissions []string) (perms, hosts []string) {
	perms = make([]string, 0, len(permissions))
	hosts = make([]string, 0, len(hostPermissions))
	seenPerm := make(map[string]bool)
	seenHost := make(map[string]bool)

	addHost := func(h string) {
		if h != "" && !seenHost[h] {
			seenHost[h] = true
			hosts = append(hosts, h)
		}
	}

	for _, p := range permissions {
		if isHostPattern(p) {
			addHost(p)
			continue
		}
		if p != "" && !seenPerm[p] {
			seenPerm[p] = true
			perms = append(perms, p)
		}
	}
	for _, h := range hostPermissions {
		addHost(h)
	}

	return perms, hosts
}
