package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, read once at startup from flags
// and the environment (.env is honored for local runs).
type Config struct {
	Port string
	Env  string

	Gemini   GeminiConfig
	Raster   RasterConfig
	Snapshot SnapshotConfig
}

type GeminiConfig struct {
	// Fake swaps in the deterministic offline adapter; no API key needed.
	// The real adapter reads GEMINI_API_KEY from the environment.
	Fake       bool
	TextModel  string
	ImageModel string
}

type RasterConfig struct {
	// PopplerBinary is the pdftoppm path; empty means $PATH lookup.
	PopplerBinary string
	MaxDim        int
}

type SnapshotConfig struct {
	// Backend precedence: postgres when DSN set, else s3 when endpoint
	// set, else JSON files under Dir.
	Dir         string
	PostgresDSN string
	CacheSize   int
	S3          S3Config
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8081", "server port")
	fake := flag.Bool("fake-adapter", false, "use the offline fake adapter instead of Gemini")
	flag.Parse()

	if envPort := strings.TrimSpace(os.Getenv("PORT")); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port: *port,
		Env:  env,
		Gemini: GeminiConfig{
			Fake:       *fake || parseBool(os.Getenv("FAKE_ADAPTER"), false),
			TextModel:  firstNonEmpty(os.Getenv("GEMINI_TEXT_MODEL"), "gemini-2.5-flash"),
			ImageModel: firstNonEmpty(os.Getenv("GEMINI_IMAGE_MODEL"), "gemini-2.5-flash-image"),
		},
		Raster: RasterConfig{
			PopplerBinary: strings.TrimSpace(os.Getenv("PDFTOPPM_BIN")),
			MaxDim:        parseInt(os.Getenv("RASTER_MAX_DIM"), 2048),
		},
		Snapshot: SnapshotConfig{
			Dir:         firstNonEmpty(os.Getenv("SNAPSHOT_DIR"), "./data/sessions"),
			PostgresDSN: strings.TrimSpace(os.Getenv("SNAPSHOT_PG_DSN")),
			CacheSize:   parseInt(os.Getenv("SNAPSHOT_CACHE_SIZE"), 128),
			S3:          loadS3Config(env),
		},
	}, nil
}

func loadS3Config(env string) S3Config {
	return S3Config{
		Endpoint:  resolveS3Endpoint(env),
		Region:    firstNonEmpty(os.Getenv("SNAPSHOT_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(os.Getenv("SNAPSHOT_S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(os.Getenv("SNAPSHOT_S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(os.Getenv("SNAPSHOT_S3_BUCKET"), "siteplan-sessions"),
		UseSSL:    resolveS3UseSSL(env),
	}
}

func resolveS3Endpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return strings.TrimSpace(os.Getenv("SNAPSHOT_MINIO_ENDPOINT"))
	}
	return strings.TrimSpace(os.Getenv("SNAPSHOT_S3_ENDPOINT"))
}

func resolveS3UseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	return parseBool(os.Getenv("SNAPSHOT_S3_USE_SSL"), true)
}

func parseBool(raw string, fallback bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
