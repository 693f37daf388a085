package assertx

import "testing"

// Equal fails if want != got.
func Equal[T comparable](t *testing.T, want, got T) {
	t.Helper()
	if want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
}

// Status fails unless the response status is want.
func Status(t *testing.T, want, got int, body []byte) {
	t.Helper()
	if want != got {
		t.Fatalf("want status %d, got %d: %s", want, got, body)
	}
}
