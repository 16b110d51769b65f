package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorUnwrap verifies errors.Is sees through the wrapper to the
// sentinel.
func TestAppErrorUnwrap(t *testing.T) {
	err := New(ErrMalformedRecord, http.StatusBadRequest, "missing title")
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatal("errors.Is failed to match the sentinel")
	}
	wrapped := fmt.Errorf("ingesting: %w", err)
	if !errors.Is(wrapped, ErrMalformedRecord) {
		t.Fatal("errors.Is failed through an extra wrap")
	}
}

// TestHTTPStatusCode verifies the sentinel-to-status mapping and that an
// explicit AppError status wins.
func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(ErrIndexUnavailable, http.StatusServiceUnavailable, "not built"), http.StatusServiceUnavailable},
		{fmt.Errorf("wrap: %w", ErrDocumentNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", ErrMalformedRecord), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", ErrIndexUnavailable), http.StatusServiceUnavailable},
		{errors.New("anything else"), http.StatusInternalServerError},
		{Newf(ErrCorruptSegment, 500, "bad magic %x", 0), http.StatusInternalServerError},
	}
	for i, tc := range cases {
		if got := HTTPStatusCode(tc.err); got != tc.want {
			t.Errorf("case %d: HTTPStatusCode(%v) = %d, want %d", i, tc.err, got, tc.want)
		}
	}
}

// TestAppErrorMessage verifies the rendered message includes both the
// sentinel and the detail.
func TestAppErrorMessage(t *testing.T) {
	err := New(ErrInvalidArgument, http.StatusBadRequest, `unknown sort "citations"`)
	want := `invalid argument: unknown sort "citations"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
