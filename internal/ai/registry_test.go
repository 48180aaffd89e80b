package ai

import "testing"

func TestModelTableResolve(t *testing.T) {
	table := NewModelTable("gpt-3.5-turbo-16k")
	table.Register("gpt-4", "gpt-4-deployment")

	if got := table.Resolve("gpt-4"); got != "gpt-4-deployment" {
		t.Fatalf("resolve gpt-4 = %q", got)
	}
	if got := table.Resolve(" GPT-4 "); got != "gpt-4-deployment" {
		t.Fatalf("resolve is not case/space insensitive: %q", got)
	}
	if got := table.Resolve("made-up-model"); got != "gpt-3.5-turbo-16k" {
		t.Fatalf("unknown model should fall back, got %q", got)
	}
	if got := table.Resolve(""); got != "gpt-3.5-turbo-16k" {
		t.Fatalf("empty model should fall back, got %q", got)
	}
}
