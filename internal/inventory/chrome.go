package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Chrome manifest locations as stored in the profile's extension settings
const (
	locationInternal             = 1
	locationExternalPref         = 2
	locationExternalRegistry     = 3
	locationUnpacked             = 4
	locationComponent            = 5
	locationExternalPrefDownload = 6
	locationCommandLine          = 8
	locationExternalComponent    = 10
)

// ChromeProfile lists the extensions installed in a Chromium profile directory
type ChromeProfile struct {
	dir string
}

// NewChromeProfile creates a source reading the given profile directory
// (e.g. ~/.config/google-chrome/Default)
func NewChromeProfile(dir string) *ChromeProfile {
	return &ChromeProfile{dir: dir}
}

// DefaultChromeProfileDir returns the Default profile location for the given OS
func DefaultChromeProfileDir(goos, home string) string {
	switch goos {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "Google", "Chrome", "User Data", "Default")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Google", "Chrome", "Default")
	default:
		return filepath.Join(home, ".config", "google-chrome", "Default")
	}
}

// setting is the subset of an extensions.settings entry we care about
type setting struct {
	location int64
	enabled  bool
	path     string
}

// List reads extension settings and manifests from the profile
func (c *ChromeProfile) List(ctx context.Context) ([]Module, error) {
	info, err := os.Stat(c.dir)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open profile: %s is not a directory", c.dir)
	}

	settings, order, err := c.readSettings()
	if err != nil {
		return nil, err
	}

	modules := make([]Module, 0, len(order))
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s := settings[id]
		if s.location == locationComponent || s.location == locationExternalComponent {
			// Built into the browser, not third-party
			continue
		}

		manifestDir := s.path
		if !filepath.IsAbs(manifestDir) {
			manifestDir = filepath.Join(c.dir, "Extensions", filepath.FromSlash(s.path))
		}

		m, err := readManifest(manifestDir)
		if err != nil {
			log.Printf("Skipping extension %s: %v", id, err)
			continue
		}

		m.ID = id
		m.Enabled = s.enabled
		m.Provenance = provenanceFromLocation(s.location)
		modules = append(modules, *m)
	}

	// Extensions on disk without a settings entry (copied profiles, partially
	// written preferences)
	orphans, err := c.orphanDirs(settings)
	if err != nil {
		return nil, err
	}
	for _, o := range orphans {
		m, err := readManifest(o.dir)
		if err != nil {
			log.Printf("Skipping extension %s: %v", o.id, err)
			continue
		}
		m.ID = o.id
		m.Enabled = true
		m.Provenance = ProvenanceOther
		modules = append(modules, *m)
	}

	return modules, nil
}

// readSettings merges extensions.settings from Preferences and Secure
// Preferences. Secure Preferences wins field by field. The returned order is
// sorted by extension id so listing is deterministic.
func (c *ChromeProfile) readSettings() (map[string]setting, []string, error) {
	regular, err := readSettingsFile(filepath.Join(c.dir, "Preferences"))
	if err != nil {
		return nil, nil, err
	}
	secure, err := readSettingsFile(filepath.Join(c.dir, "Secure Preferences"))
	if err != nil {
		return nil, nil, err
	}

	ids := make(map[string]bool)
	for _, r := range []gjson.Result{regular, secure} {
		r.ForEach(func(key, _ gjson.Result) bool {
			ids[key.String()] = true
			return true
		})
	}

	settings := make(map[string]setting, len(ids))
	order := make([]string, 0, len(ids))
	for id := range ids {
		get := func(field string) gjson.Result {
			path := gjson.Escape(id) + "." + field
			if v := secure.Get(path); v.Exists() {
				return v
			}
			return regular.Get(path)
		}

		s := setting{
			location: get("location").Int(),
			enabled:  true,
			path:     get("path").String(),
		}
		if s.path == "" {
			continue
		}
		if st := get("state"); st.Exists() {
			s.enabled = st.Int() == 1
		}
		if dr := get("disable_reasons"); dr.Exists() {
			if (dr.IsArray() && len(dr.Array()) > 0) || (dr.Type == gjson.Number && dr.Int() != 0) {
				s.enabled = false
			}
		}

		settings[id] = s
		order = append(order, id)
	}
	sort.Strings(order)

	return settings, order, nil
}

// readSettingsFile returns the extensions.settings object of a preferences
// file. A missing file yields an empty result.
func readSettingsFile(path string) (gjson.Result, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return gjson.Result{}, nil
	}
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("read %s: invalid JSON", filepath.Base(path))
	}
	return gjson.GetBytes(data, "extensions.settings"), nil
}

type orphanDir struct {
	id  string
	dir string
}

// orphanDirs finds Extensions/<id>/<version> directories that have no
// settings entry and picks the highest version of each.
func (c *ChromeProfile) orphanDirs(settings map[string]setting) ([]orphanDir, error) {
	root := filepath.Join(c.dir, "Extensions")
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read extensions directory: %w", err)
	}

	orphans := make([]orphanDir, 0)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, known := settings[e.Name()]; known {
			continue
		}

		versions, err := os.ReadDir(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		best := ""
		for _, v := range versions {
			if v.IsDir() && (best == "" || compareVersions(v.Name(), best) > 0) {
				best = v.Name()
			}
		}
		if best == "" {
			continue
		}
		orphans = append(orphans, orphanDir{id: e.Name(), dir: filepath.Join(root, e.Name(), best)})
	}

	return orphans, nil
}

// readManifest parses dir/manifest.json into a Module without identity or
// install state.
func readManifest(dir string) (*Module, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("read manifest: invalid JSON")
	}
	manifest := gjson.ParseBytes(data)

	m := &Module{
		Name:        manifest.Get("name").String(),
		Version:     manifest.Get("version").String(),
		Description: manifest.Get("description").String(),
		Kind:        manifestKind(manifest),
	}
	if m.Name == "" {
		return nil, errors.New("bad format in manifest: field 'name' must be specified")
	}
	if m.Version == "" {
		return nil, errors.New("bad format in manifest: field 'version' must be specified")
	}

	// Content script match patterns grant host access just like host_permissions
	hosts := stringsOf(manifest.Get("host_permissions"))
	for _, matches := range manifest.Get("content_scripts.#.matches").Array() {
		hosts = append(hosts, stringsOf(matches)...)
	}
	m.Permissions, m.HostPermissions = splitPermissions(stringsOf(manifest.Get("permissions")), hosts)

	if icons := manifest.Get("icons"); icons.IsObject() {
		m.Icons = make(map[string]string)
		icons.ForEach(func(size, path gjson.Result) bool {
			m.Icons[size.String()] = path.String()
			return true
		})
	}

	if locale := manifest.Get("default_locale").String(); locale != "" {
		resolveLocale(m, dir, locale)
	}

	return m, nil
}

func manifestKind(manifest gjson.Result) Kind {
	switch {
	case manifest.Get("theme").Exists():
		return KindTheme
	case manifest.Get("app").Exists():
		return KindApp
	default:
		return KindExtension
	}
}

// stringsOf returns the string elements of a JSON array, skipping object
// entries such as {"fileSystem": ["write"]}.
func stringsOf(arr gjson.Result) []string {
	out := make([]string, 0)
	for _, v := range arr.Array() {
		if v.Type == gjson.String {
			out = append(out, v.String())
		}
	}
	return out
}

// resolveLocale replaces __MSG_key__ placeholders in name and description
// with messages from _locales/<locale>/messages.json. Failures leave the
// placeholders in place.
func resolveLocale(m *Module, dir, locale string) {
	data, err := os.ReadFile(filepath.Join(dir, "_locales", locale, "messages.json"))
	if err != nil || !gjson.ValidBytes(data) {
		return
	}

	// keys are case-insensitive
	messages := make(map[string]string)
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		messages[strings.ToLower(key.String())] = value.Get("message").String()
		return true
	})

	for _, field := range []*string{&m.Name, &m.Description} {
		if key, ok := cutPrefixSuffix(*field, "__MSG_", "__"); ok {
			if msg, ok := messages[strings.ToLower(key)]; ok {
				*field = msg
			}
		}
	}
}

// cutPrefixSuffix cuts the specified prefix and suffix if they exist, returns false otherwise
func cutPrefixSuffix(s, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, suffix) || len(s) < len(prefix)+len(suffix) {
		return "", false
	}
	return s[len(prefix) : len(s)-len(suffix)], true
}

func provenanceFromLocation(location int64) Provenance {
	switch location {
	case locationInternal:
		return ProvenanceStore
	case locationUnpacked, locationCommandLine:
		return ProvenanceDevelopment
	case locationExternalPref, locationExternalRegistry, locationExternalPrefDownload:
		return ProvenanceSideload
	default:
		return ProvenanceOther
	}
}

// compareVersions compares Chrome version directory names such as
// "1.10.2_0". Non-numeric components compare as zero.
func compareVersions(a, b string) int {
	pa := versionParts(a)
	pb := versionParts(b)
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

func versionParts(v string) []int {
	v = strings.ReplaceAll(v, "_", ".")
	fields := strings.Split(v, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		parts[i], _ = strconv.Atoi(f)
	}
	return parts
}
