package chromelens

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorIsSentinelCompatible(t *testing.T) {
	wrapped := fmt.Errorf("resolving locator: %w", ErrNoResults)
	if !errors.Is(wrapped, ErrNoResults) {
		t.Fatalf("errors.Is did not recognize a wrapped Error sentinel")
	}
	if errors.Is(wrapped, ErrNotVisible) {
		t.Fatalf("errors.Is matched the wrong sentinel")
	}
}

func TestProtocolErrorMessage(t *testing.T) {
	err := &ProtocolError{Code: -32000, Message: "Cannot find context with specified id"}
	want := "protocol error (-32000): Cannot find context with specified id"
	if got := err.Error(); got != want {
		t.Errorf("ProtocolError.Error() = %q, want %q", got, want)
	}
}

func TestTimeoutErrorMessage(t *testing.T) {
	err := &TimeoutError{Op: "locator.click", Timeout: 30 * time.Second}
	want := "locator.click: timed out after 30s"
	if got := err.Error(); got != want {
		t.Errorf("TimeoutError.Error() = %q, want %q", got, want)
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{Selector: `role=button[name="Submit"]`}
	want := `no element found for selector "role=button[name=\"Submit\"]"`
	if got := err.Error(); got != want {
		t.Errorf("NotFoundError.Error() = %q, want %q", got, want)
	}
}
