package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRegion  = "us-central1"
	DefaultRuntime = "nodejs20"
)

// DefaultPublicAPIFunctions are exported by --public-api-only when
// PUBLIC_API_FUNCTIONS is not set.
var DefaultPublicAPIFunctions = []string{
	"queryProductScores",
	"queryBrandScores",
	"searchScores",
	"publicApiHealth",
}

// Config is read once at startup and passed by value to every stage.
type Config struct {
	ProjectID   string
	Region      string
	ProjectRoot string
	ServicesDir string

	FunctionsFilter      []string
	FunctionConcurrency  int
	FunctionMaxInstances int
	Runtime              string
	Memory               string
	Timeout              string

	GeminiAPIKey string
	QdrantURL    string

	PubSubTopics  []string
	StorageBucket string
	// FirestoreSA is a base64 encoded service account JSON.
	FirestoreSA string

	NgrokAuthToken string

	ValidationPolicy   string
	PublicAPIFunctions []string

	Emulator EmulatorConfig
}

type EmulatorConfig struct {
	HubHost       string
	Only          []string
	ReadyAttempts int
	ReadyInterval time.Duration
}

// Load reads the process environment. main loads .env first.
func Load() Config {
	root := strings.TrimSpace(os.Getenv("PROJECT_ROOT"))
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		} else {
			root = "."
		}
	}

	return Config{
		ProjectID:            firstNonEmpty(env("FIREBASE_PROJECT_ID"), env("GCLOUD_PROJECT")),
		Region:               firstNonEmpty(env("FIREBASE_REGION"), DefaultRegion),
		ProjectRoot:          root,
		ServicesDir:          firstNonEmpty(env("SERVICES_DIR"), filepath.Join(root, "services")),
		FunctionsFilter:      splitList(env("FUNCTIONS_FILTER")),
		FunctionConcurrency:  atoi(env("FUNCTION_CONCURRENCY")),
		FunctionMaxInstances: atoi(env("FUNCTION_MAX_INSTANCES")),
		Runtime:              firstNonEmpty(env("FUNCTIONS_RUNTIME"), DefaultRuntime),
		Memory:               env("FUNCTIONS_MEMORY"),
		Timeout:              env("FUNCTIONS_TIMEOUT"),
		GeminiAPIKey:         env("GEMINI_API_KEY"),
		QdrantURL:            env("QDRANT_URL"),
		PubSubTopics:         splitList(env("PUBSUB_TOPICS")),
		StorageBucket:        env("FIREBASE_STORAGE_BUCKET"),
		FirestoreSA:          env("FIRESTORE_SA"),
		NgrokAuthToken:       env("NGROK_AUTHTOKEN"),
		ValidationPolicy:     firstNonEmpty(env("VALIDATION_POLICY"), "prompt"),
		PublicAPIFunctions:   listOr(splitList(env("PUBLIC_API_FUNCTIONS")), DefaultPublicAPIFunctions),
		Emulator: EmulatorConfig{
			HubHost:       firstNonEmpty(env("FIREBASE_EMULATOR_HUB"), "127.0.0.1:4400"),
			Only:          splitList(env("EMULATORS_ONLY")),
			ReadyAttempts: 30,
			ReadyInterval: 2 * time.Second,
		},
	}
}

// ProductionEnv returns the overrides appended to the generated functions/.env.
func (c Config) ProductionEnv() map[string]string {
	out := map[string]string{"NODE_ENV": "production"}
	if c.FunctionConcurrency > 0 {
		out["FUNCTION_CONCURRENCY"] = strconv.Itoa(c.FunctionConcurrency)
	}
	if c.FunctionMaxInstances > 0 {
		out["FUNCTION_MAX_INSTANCES"] = strconv.Itoa(c.FunctionMaxInstances)
	}
	if c.GeminiAPIKey != "" {
		out["GEMINI_API_KEY"] = c.GeminiAPIKey
	}
	if c.QdrantURL != "" {
		out["QDRANT_URL"] = c.QdrantURL
	}
	return out
}

// EmulatorHostsSet reports whether the Cloud clients will talk to emulators.
func EmulatorHostsSet() bool {
	return env("FIRESTORE_EMULATOR_HOST") != "" || env("PUBSUB_EMULATOR_HOST") != ""
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func listOr(values, fallback []string) []string {
	if len(values) > 0 {
		return values
	}
	return append([]string(nil), fallback...)
}

func atoi(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}
