package instance

import "testing"

func TestGetIDPrefersOverride(t *testing.T) {
	t.Setenv(EnvInstanceID, "api-7")
	if got := GetID(); got != "api-7" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv(EnvInstanceID, "")
	if GetID() == "" {
		t.Fatal("expected a non-empty fallback id")
	}
}
