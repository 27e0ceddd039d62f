package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeReportGen,
				Message: "template failed",
			},
			want: "[REPORT_GENERATION_FAILED] template failed",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeResultsParse,
				Message: "cannot parse results file report.xml",
				Cause:   errors.New("unexpected EOF"),
			},
			want: "[RESULTS_PARSE_ERROR] cannot parse results file report.xml: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("permission denied")
	err := ErrArtifactIOFailed("/tmp/a.png", inner)

	if !errors.Is(err, inner) {
		t.Error("AppError.Unwrap() should allow errors.Is to find inner error")
	}
}

func TestAppError_IsSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"parse matches parse", ErrResultsParseFailed("r.xml", errors.New("x")), ErrResultsParse, true},
		{"wrapped parse matches parse", fmt.Errorf("finalize: %w", ErrResultsParseFailed("r.xml", nil)), ErrResultsParse, true},
		{"parse does not match config", ErrResultsParseFailed("r.xml", nil), ErrConfig, false},
		{"config missing matches config", ErrConfigMissing([]string{"TEST_USERNAME"}), ErrConfig, true},
		{"run dir exists", ErrRunDirExists("/runs/x"), ErrRunExists, true},
		{"plain error", errors.New("boom"), ErrCleanup, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.sentinel); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(ErrCleanupFailed("/x", nil)); got != ErrCodeCleanup {
		t.Errorf("GetErrorCode() = %s, want %s", got, ErrCodeCleanup)
	}
	if got := GetErrorCode(errors.New("plain")); got != "" {
		t.Errorf("GetErrorCode() = %s, want empty", got)
	}
}

func TestErrConfigMissing_Metadata(t *testing.T) {
	err := ErrConfigMissing([]string{"TEST_USERNAME", "PORTAL1_BASE_URL"})
	names, ok := err.Metadata["missing"].([]string)
	if !ok || len(names) != 2 {
		t.Fatalf("missing metadata = %v", err.Metadata["missing"])
	}
}
