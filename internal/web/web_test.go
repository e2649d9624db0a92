package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/exttrust/exttrust/internal/analysis"
	"github.com/exttrust/exttrust/internal/inventory"
	"github.com/exttrust/exttrust/internal/policy"
)

type fakeScanner struct {
	result *analysis.Result
	err    error
}

func (f *fakeScanner) Scan(ctx context.Context) (*analysis.Result, error) {
	return f.result, f.err
}

func TestLinkify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			in:   "Dangerous permission: debugger",
			want: "Dangerous permission: debugger",
		},
		{
			in:   "Known malicious: see https://example.com/report?id=1&x=2 for details",
			want: `Known malicious: see <a class="reason-link" href="https://example.com/report?id=1&amp;x=2" target="_blank" rel="noopener noreferrer">https://example.com/report?id=1&amp;x=2</a> for details`,
		},
		{
			in:   "<script>alert(1)</script>",
			want: "&lt;script&gt;alert(1)&lt;/script&gt;",
		},
	}

	for _, tt := range tests {
		if got := string(linkify(tt.in)); got != tt.want {
			t.Errorf("linkify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func render(t *testing.T, s Scanner, method, target string) string {
	t.Helper()
	w, err := New(s)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	rec := httptest.NewRecorder()
	w.Router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func TestHome(t *testing.T) {
	body := render(t, &fakeScanner{}, http.MethodGet, "/")
	if !strings.Contains(body, "Scan Extensions") {
		t.Error("home page missing scan button")
	}
	if strings.Contains(body, "No other extensions found.") {
		t.Error("home page shows empty result before a scan")
	}
}

func TestScanPage(t *testing.T) {
	items := []analysis.Item{
		{
			Module: inventory.Module{ID: "evil", Name: "Evil Helper", Version: "6.6.6", Enabled: true, Provenance: inventory.ProvenanceStore},
			Verdict: policy.Verdict{
				Level:   policy.LevelBlocklisted,
				Score:   100,
				Reasons: []string{"Known malicious: see https://example.com/r"},
			},
		},
		{
			Module:  inventory.Module{ID: "ghost", Name: "Ghost", Version: "1.0", Enabled: false, Provenance: inventory.ProvenanceOther},
			Verdict: policy.Verdict{Level: policy.LevelWarn, Score: 3, Reasons: []string{policy.ReasonUnlisted}},
		},
	}
	result := &analysis.Result{Items: items, Summary: analysis.Summarize(items)}

	body := render(t, &fakeScanner{result: result}, http.MethodPost, "/scan")

	for _, want := range []string{
		"BLOCKLISTED",
		"NOT IN STORE",
		"Evil Helper",
		"v6.6.6",
		"risk-blocklist",
		"risk-warn",
		"Disabled &middot; other",
		`href="https://example.com/r"`,
		"0 Safe",
		"1 Warnings",
		"1 Dangerous",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestScanPageStates(t *testing.T) {
	empty := render(t, &fakeScanner{result: &analysis.Result{Items: []analysis.Item{}}}, http.MethodPost, "/scan")
	if !strings.Contains(empty, "No other extensions found.") {
		t.Error("empty scan missing placeholder")
	}

	failed := render(t, &fakeScanner{err: errors.New("no profile")}, http.MethodPost, "/scan")
	if !strings.Contains(failed, "Failed to scan extensions.") {
		t.Error("failed scan missing error message")
	}
}
