package auths

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vibego/vibego/configs"
	"github.com/vibego/vibego/logs"
)

// Credentials is what the chat backend needs to authenticate. An empty
// BaseURL means the provider default applies.
type Credentials struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
}

type CredentialsConfig struct {
	// CrashIfMissing fails hard instead of prompting interactively.
	CrashIfMissing bool
	CacheFilePath  string
	Input          io.Reader
	Output         io.Writer
}

func (Module) CredentialsConfig(
	loader configs.Loader,
) CredentialsConfig {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return CredentialsConfig{
		CrashIfMissing: configs.First[bool](loader, "crash_if_no_key") ||
			os.Getenv("VIBEGO_ENV") == "production",
		CacheFilePath: filepath.Join(cacheDir, "vibego", "credentials.json"),
		Input:         os.Stdin,
		Output:        os.Stderr,
	}
}

var ErrNoCredentials = errors.New("no API key found in environment or cache")

var envVarsToCheck = []struct {
	Name    string
	BaseURL string
}{
	{"OPENROUTER_API_KEY", "https://openrouter.ai/api/v1"},
	{"OPENAI_API_KEY", ""},
	{"ANTHROPIC_API_KEY", "https://api.anthropic.com/v1"},
	{"API_KEY", ""},
}

type GetCredentials func() (Credentials, error)

func (Module) GetCredentials(
	config CredentialsConfig,
	logger logs.Logger,
) GetCredentials {
	return func() (Credentials, error) {

		// environment
		for _, env := range envVarsToCheck {
			if key := os.Getenv(env.Name); key != "" {
				return Credentials{
					APIKey:  key,
					BaseURL: env.BaseURL,
				}, nil
			}
		}

		// cache file
		if content, err := os.ReadFile(config.CacheFilePath); err == nil {
			var cached Credentials
			if err := json.Unmarshal(content, &cached); err == nil && cached.APIKey != "" {
				return cached, nil
			}
		}

		if config.CrashIfMissing {
			return Credentials{}, ErrNoCredentials
		}

		// interactive prompt
		creds, err := promptCredentials(config)
		if err != nil {
			return Credentials{}, err
		}

		// cache best-effort
		if err := writeCache(config.CacheFilePath, creds); err != nil {
			logger.Warn("could not cache credentials",
				"path", config.CacheFilePath,
				"error", err,
			)
		}

		return creds, nil
	}
}

func promptCredentials(config CredentialsConfig) (Credentials, error) {
	out := config.Output
	reader := bufio.NewReader(config.Input)

	fmt.Fprintln(out, "no API key found in environment or cache")
	fmt.Fprint(out, "enter your API key: ")
	key, err := reader.ReadString('\n')
	if err != nil {
		return Credentials{}, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Credentials{}, errors.New("no API key provided")
	}

	fmt.Fprintln(out, "select provider:")
	fmt.Fprintln(out, "1. OpenRouter")
	fmt.Fprintln(out, "2. OpenAI")
	fmt.Fprintln(out, "3. custom")
	fmt.Fprint(out, "choice (default OpenRouter): ")
	choice, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Credentials{}, err
	}

	creds := Credentials{
		APIKey: key,
	}
	switch strings.TrimSpace(choice) {
	case "2":
		// provider default
	case "3":
		fmt.Fprint(out, "base URL: ")
		baseURL, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Credentials{}, err
		}
		creds.BaseURL = strings.TrimSpace(baseURL)
	default:
		creds.BaseURL = "https://openrouter.ai/api/v1"
	}

	return creds, nil
}

func writeCache(path string, creds Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	content, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0600)
}
