package utils

import "testing"

func TestOpenSlotScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if openSlotAcquireScript == nil || openSlotReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}
