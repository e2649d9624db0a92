package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

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

// decoded mirrors Response with concrete payload types
type decoded struct {
	Data  *ScanData `json:"data"`
	Meta  *Meta     `json:"meta"`
	Error *ErrorMsg `json:"error"`
}

func TestScan(t *testing.T) {
	items := []analysis.Item{
		{
			Module: inventory.Module{
				ID:              "evil",
				Name:            "Evil",
				Version:         "6.6.6",
				Enabled:         true,
				Provenance:      inventory.ProvenanceStore,
				Kind:            inventory.KindExtension,
				Permissions:     []string{},
				HostPermissions: []string{},
			},
			Verdict: policy.Verdict{Level: policy.LevelBlocklisted, Score: 100, Reasons: []string{"Known malicious: cryptojacking"}},
		},
	}
	result := &analysis.Result{
		ID:        uuid.New(),
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Items:     items,
		Summary:   analysis.Summarize(items),
	}

	srv := httptest.NewServer(New(&fakeScanner{result: result}, *policy.DefaultTable()).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/scan", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /scan: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	var got decoded
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := &ScanData{
		ID:         result.ID,
		StartedAt:  result.StartedAt,
		DurationMs: 1500,
		Items:      items,
		Summary:    analysis.Summary{Danger: 1, Blocklisted: 1},
	}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if got.Meta == nil || got.Meta.Total != 1 || got.Meta.ScanID != result.ID {
		t.Errorf("meta = %+v, want total 1 and scan id %s", got.Meta, result.ID)
	}
	if got.Error != nil {
		t.Errorf("error = %+v, want nil", got.Error)
	}
}

func TestScanErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "inventory_unavailable",
			err:        fmt.Errorf("%w: %w", analysis.ErrInventoryUnavailable, errors.New("no profile")),
			wantStatus: http.StatusBadGateway,
			wantCode:   "inventory_unavailable",
		},
		{
			name:       "other",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "scan_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&fakeScanner{err: tt.err}, *policy.DefaultTable()).Router()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/scan", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var got decoded
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Error == nil || got.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", got.Error, tt.wantCode)
			}
			if got.Data != nil {
				t.Errorf("data = %+v, want nil", got.Data)
			}
		})
	}
}

func TestGetPolicy(t *testing.T) {
	h := New(&fakeScanner{}, *policy.DefaultTable()).Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/policy", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got struct {
		Data policy.Table `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(*policy.DefaultTable(), got.Data); diff != "" {
		t.Errorf("policy mismatch (-want +got):\n%s", diff)
	}
}

func TestPreflight(t *testing.T) {
	h := New(&fakeScanner{}, *policy.DefaultTable()).Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/scan", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
}
