package version

import "testing"

func TestGet(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = " v1.2.0\n"
	if got := Get(); got != "v1.2.0" {
		t.Errorf("Get() = %q, want v1.2.0", got)
	}

	Version = ""
	if got := Get(); got == "" {
		t.Error("expected a fallback version")
	}
}
