package blocklist_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/exttrust/exttrust/internal/blocklist"
)

const remoteBody = `[
  {"id": "remoteidremoteidremoteidremoteid", "reason": "Session hijacking"},
  {"id": "", "reason": "dropped"}
]`

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	localSnapshot := `[{"id": "localidlocalidlocalidlocalidloca", "reason": "Local entry"}]`
	localWant := []blocklist.Entry{{ID: "localidlocalidlocalidlocalidloca", Reason: "Local entry"}}

	tests := []struct {
		name     string
		handler  http.HandlerFunc // nil means no remote URL
		snapshot string
		want     []blocklist.Entry
	}{
		{
			name: "remote_ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(remoteBody))
			},
			snapshot: localSnapshot,
			want:     []blocklist.Entry{{ID: "remoteidremoteidremoteidremoteid", Reason: "Session hijacking"}},
		},
		{
			name: "remote_empty_array",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[]`))
			},
			snapshot: localSnapshot,
			want:     []blocklist.Entry{},
		},
		{
			name: "remote_status_falls_back",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusServiceUnavailable)
			},
			snapshot: localSnapshot,
			want:     localWant,
		},
		{
			name: "remote_bad_json_falls_back",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"id": "not an array"}`))
			},
			snapshot: localSnapshot,
			want:     localWant,
		},
		{
			name: "remote_null_falls_back",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`null`))
			},
			snapshot: localSnapshot,
			want:     localWant,
		},
		{
			name:     "no_remote",
			snapshot: localSnapshot,
			want:     localWant,
		},
		{
			name: "remote_and_snapshot_fail",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusInternalServerError)
			},
			snapshot: `garbage`,
			want:     []blocklist.Entry{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remoteURL := ""
			if tt.handler != nil {
				srv := httptest.NewServer(tt.handler)
				defer srv.Close()
				remoteURL = srv.URL
			}

			src := blocklist.New(remoteURL, writeSnapshot(t, tt.snapshot), 5*time.Second)
			got := src.Load(context.Background())
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadEmbeddedSnapshot(t *testing.T) {
	got := blocklist.New("", "", time.Second).Load(context.Background())
	if len(got) == 0 {
		t.Fatal("Load() returned no entries from the embedded snapshot")
	}

	index := blocklist.Index(got)
	if e, ok := index["oofiananboodjbbmdelgdommihjbkfag"]; !ok || e.Reason != "cryptojacking" {
		t.Errorf("embedded snapshot entry = %+v, %v", e, ok)
	}
}

func TestLoadMissingSnapshotFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	got := blocklist.New("", path, time.Second).Load(context.Background())
	if got == nil || len(got) != 0 {
		t.Errorf("Load() = %#v, want empty non-nil slice", got)
	}
}

func TestLoadBypassesCache(t *testing.T) {
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	blocklist.New(srv.URL, "", time.Second).Load(context.Background())

	if got := header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
	if got := header.Get("Pragma"); got != "no-cache" {
		t.Errorf("Pragma = %q, want no-cache", got)
	}
}

func TestIndex(t *testing.T) {
	entries := []blocklist.Entry{
		{ID: "a", Reason: "first"},
		{ID: "b", Reason: "other"},
		{ID: "a", Reason: "second"},
	}

	want := map[string]blocklist.Entry{
		"a": {ID: "a", Reason: "first"},
		"b": {ID: "b", Reason: "other"},
	}
	if diff := cmp.Diff(want, blocklist.Index(entries)); diff != "" {
		t.Errorf("Index() mismatch (-want +got):\n%s", diff)
	}
}
