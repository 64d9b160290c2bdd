package auth

import (
	"path/filepath"
	"testing"
)

func TestStore_SetAndGetAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s := NewStore(path)

	if _, ok := s.Get("anthropic"); ok {
		t.Fatal("expected no credential before SetAPIKey")
	}

	if err := s.SetAPIKey("anthropic", "sk-test-123"); err != nil {
		t.Fatalf("SetAPIKey failed: %v", err)
	}

	cred, ok := s.Get("anthropic")
	if !ok {
		t.Fatal("expected credential after SetAPIKey")
	}
	if cred.Mode != ModeAPIKey || cred.APIKey != "sk-test-123" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
}

func TestStore_RemovePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s := NewStore(path)

	if err := s.SetAPIKey("openai", "sk-abc"); err != nil {
		t.Fatalf("SetAPIKey failed: %v", err)
	}
	if err := s.Remove("openai"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := s.Get("openai"); ok {
		t.Fatal("expected credential removed")
	}

	reopened := NewStore(path)
	if _, ok := reopened.Get("openai"); ok {
		t.Fatal("removal should persist across Store instances")
	}
}

func TestStore_AllReturnsEveryProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s := NewStore(path)

	s.SetAPIKey("anthropic", "sk-a")
	s.SetAPIKey("openai", "sk-b")

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(all))
	}
}

func TestFindMethod(t *testing.T) {
	m, ok := FindMethod("anthropic", "oauth_cli")
	if !ok {
		t.Fatal("expected oauth_cli method for anthropic")
	}
	if m.Type != "oauth" {
		t.Fatalf("expected oauth type, got %q", m.Type)
	}

	if _, ok := FindMethod("anthropic", "nonexistent"); ok {
		t.Fatal("expected lookup of unknown method to fail")
	}
}
