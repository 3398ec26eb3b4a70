package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"
)

var (
	DefaultModels              = []string{"gemini-2.0-flash-exp", "gemini-flash-latest"}
	DefaultFallbackStatusCodes = []int{404, 429}
)

type Config struct {
	// Server
	Port           string
	Env            string
	LogLevel       string
	MetricsEnabled bool

	// Gemini AI
	GeminiAPIKey         string
	GeminiBaseURL        string
	// GeminiAPIVersion is the path segment of generateContent calls only.
	// Model listing goes through the genai SDK, which always uses v1beta.
	GeminiAPIVersion     string
	GeminiModels         []string
	FallbackStatusCodes  []int
	DisableSafetyFilters bool
	ModelsFile           string
	UpstreamTimeout      time.Duration
}

// modelsFile is the optional YAML override for the candidate list.
type modelsFile struct {
	Models              []string `yaml:"models"`
	FallbackStatusCodes []int    `yaml:"fallback_status_codes"`
}

// Load reads configuration from the environment. A missing API key is not an
// error here; the chat endpoint reports it per request.
func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		MetricsEnabled:       getEnvAsBoolOrDefault("METRICS_ENABLED", true),
		GeminiAPIKey:         strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:        strings.TrimRight(getEnvOrDefault("GEMINI_BASE_URL", DefaultBaseURL), "/"),
		GeminiAPIVersion:     getEnvOrDefault("GEMINI_API_VERSION", DefaultAPIVersion),
		GeminiModels:         getEnvAsListOrDefault("GEMINI_MODELS", DefaultModels),
		FallbackStatusCodes:  getEnvAsIntListOrDefault("GEMINI_FALLBACK_STATUS_CODES", DefaultFallbackStatusCodes),
		DisableSafetyFilters: getEnvAsBoolOrDefault("GEMINI_DISABLE_SAFETY_FILTERS", true),
		ModelsFile:           getEnvOrDefault("GEMINI_MODELS_FILE", ""),
		UpstreamTimeout:      getEnvAsDurationOrDefault("UPSTREAM_TIMEOUT", 0),
	}

	if cfg.ModelsFile != "" {
		if err := cfg.loadModelsFile(cfg.ModelsFile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) loadModelsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read models file: %w", err)
	}

	var mf modelsFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("failed to parse models file %s: %w", path, err)
	}

	if models := cleanList(mf.Models); len(models) > 0 {
		c.GeminiModels = models
	}
	if len(mf.FallbackStatusCodes) > 0 {
		c.FallbackStatusCodes = mf.FallbackStatusCodes
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	list := cleanList(strings.Split(os.Getenv(key), ","))
	if len(list) == 0 {
		return append([]string(nil), defaultVal...)
	}
	return list
}

// getEnvAsIntListOrDefault rejects the whole list if any entry is not a number.
func getEnvAsIntListOrDefault(key string, defaultVal []int) []int {
	items := cleanList(strings.Split(os.Getenv(key), ","))
	if len(items) == 0 {
		return append([]int(nil), defaultVal...)
	}
	codes := make([]int, 0, len(items))
	for _, item := range items {
		n, err := strconv.Atoi(item)
		if err != nil {
			return append([]int(nil), defaultVal...)
		}
		codes = append(codes, n)
	}
	return codes
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
