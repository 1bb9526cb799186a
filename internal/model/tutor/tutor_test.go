package tutor

import (
	"strings"
	"testing"
)

func TestResolveFallsBackToDefault(t *testing.T) {
	store := NewMemoryStore(Seed())

	got, ok := Resolve(store, "missing")
	if !ok || got.ID != DefaultID {
		t.Fatalf("expected default tutor, got %+v (ok=%v)", got, ok)
	}

	got, ok = Resolve(store, "proof-coach")
	if !ok || got.ID != "proof-coach" {
		t.Fatalf("expected proof-coach, got %+v", got)
	}

	if _, ok := Resolve(NewMemoryStore(nil), ""); ok {
		t.Fatal("expected no tutor from empty store")
	}
}

func TestListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	items := store.List()
	items[0].Name = "changed"

	if again := store.List(); again[0].Name == "changed" {
		t.Fatal("List must not expose internal slice")
	}
}

func TestInstructionsIncludeRules(t *testing.T) {
	tutor, _ := NewMemoryStore(Seed()).FindByID(DefaultID)
	text := tutor.Instructions()

	if !strings.HasPrefix(text, "You are MathTA") {
		t.Fatalf("unexpected instructions: %q", text)
	}
	for _, rule := range tutor.Rules {
		if !strings.Contains(text, rule) {
			t.Fatalf("instructions missing rule %q", rule)
		}
	}
}

func TestDefaultSite(t *testing.T) {
	site := DefaultSite()
	if site.Name != "MathTA" || site.Tagline != "Your AI-powered math teaching assistant" {
		t.Fatalf("unexpected site: %+v", site)
	}
}
