package auths

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reusee/dscope"
	"github.com/vibego/vibego/modes"
)

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, env := range envVarsToCheck {
		t.Setenv(env.Name, "")
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	dscope.New(
		new(Module),
		modes.ForTest(t),
	).Call(func(
		get GetCredentials,
	) {
		creds, err := get()
		if err != nil {
			t.Fatal(err)
		}
		if creds.APIKey != "sk-test" {
			t.Errorf("api key = %q", creds.APIKey)
		}
		if creds.BaseURL != "https://openrouter.ai/api/v1" {
			t.Errorf("base url = %q", creds.BaseURL)
		}
	})
}

func TestCredentialsFromCache(t *testing.T) {
	clearKeyEnv(t)

	cachePath := filepath.Join(t.TempDir(), "credentials.json")
	content, err := json.Marshal(Credentials{
		APIKey:  "sk-cached",
		BaseURL: "https://example.com/v1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cachePath, content, 0600); err != nil {
		t.Fatal(err)
	}

	dscope.New(
		new(Module),
		modes.ForTest(t),
	).Fork(func() CredentialsConfig {
		return CredentialsConfig{
			CrashIfMissing: true,
			CacheFilePath:  cachePath,
		}
	}).Call(func(
		get GetCredentials,
	) {
		creds, err := get()
		if err != nil {
			t.Fatal(err)
		}
		if creds.APIKey != "sk-cached" {
			t.Errorf("api key = %q", creds.APIKey)
		}
		if creds.BaseURL != "https://example.com/v1" {
			t.Errorf("base url = %q", creds.BaseURL)
		}
	})
}

func TestCredentialsCrashIfMissing(t *testing.T) {
	clearKeyEnv(t)

	dscope.New(
		new(Module),
		modes.ForTest(t),
	).Fork(func() CredentialsConfig {
		return CredentialsConfig{
			CrashIfMissing: true,
			CacheFilePath:  filepath.Join(t.TempDir(), "none.json"),
		}
	}).Call(func(
		get GetCredentials,
	) {
		_, err := get()
		if !errors.Is(err, ErrNoCredentials) {
			t.Errorf("error = %v, want ErrNoCredentials", err)
		}
	})
}

func TestCredentialsPrompt(t *testing.T) {
	clearKeyEnv(t)

	cachePath := filepath.Join(t.TempDir(), "sub", "credentials.json")
	var out strings.Builder

	dscope.New(
		new(Module),
		modes.ForTest(t),
	).Fork(func() CredentialsConfig {
		return CredentialsConfig{
			CacheFilePath: cachePath,
			Input:         strings.NewReader("sk-typed\n3\nhttps://custom.example/v1\n"),
			Output:        &out,
		}
	}).Call(func(
		get GetCredentials,
	) {
		creds, err := get()
		if err != nil {
			t.Fatal(err)
		}
		if creds.APIKey != "sk-typed" {
			t.Errorf("api key = %q", creds.APIKey)
		}
		if creds.BaseURL != "https://custom.example/v1" {
			t.Errorf("base url = %q", creds.BaseURL)
		}
	})

	// prompt path caches for next time
	content, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatal(err)
	}
	var cached Credentials
	if err := json.Unmarshal(content, &cached); err != nil {
		t.Fatal(err)
	}
	if cached.APIKey != "sk-typed" {
		t.Errorf("cached api key = %q", cached.APIKey)
	}
}
