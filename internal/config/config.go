package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Gallery  GalleryConfig  `yaml:"gallery"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Arbiter  ArbiterConfig  `yaml:"arbiter"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// GalleryConfig bounds the persistent feature store.
type GalleryConfig struct {
	CheckpointPath string `yaml:"checkpoint_path"`
	// CheckpointInterval is the number of processed frames between
	// periodic checkpoints of value-only updates. Structural changes
	// (add/remove/prune) always checkpoint immediately.
	CheckpointInterval int `yaml:"checkpoint_interval"`
	// MaxReferenceFrames caps the reference set per profile; pruning
	// runs when it is exceeded.
	MaxReferenceFrames int `yaml:"max_reference_frames"`
	// PruneTopQuantile is the share of the cap retained purely by
	// quality rank before diversity clustering runs.
	PruneTopQuantile float64 `yaml:"prune_top_quantile"`
	// DuplicateSimilarity is the cosine similarity above which two
	// reference frames count as near-duplicates during pruning.
	DuplicateSimilarity float64 `yaml:"duplicate_similarity"`
	MaxHardNegatives    int     `yaml:"max_hard_negatives"`
	// Hard negatives are mined when a candidate's similarity lands in
	// [band_low, band_high] but the identity resolves elsewhere.
	HardNegativeBandLow  float64 `yaml:"hard_negative_band_low"`
	HardNegativeBandHigh float64 `yaml:"hard_negative_band_high"`
	// HardNegativePenalty scales how strongly a stored negative that
	// resembles the query reduces the candidate score.
	HardNegativePenalty float64 `yaml:"hard_negative_penalty"`
}

// MatcherConfig holds ensemble weights, boost deltas and threshold
// tuning. The boost values are empirically tuned; their relative
// ordering (route lock > jersey > history/breadcrumb) matters more
// than the literal numbers.
type MatcherConfig struct {
	BodyWeight    float64 `yaml:"body_weight"`
	JerseyWeight  float64 `yaml:"jersey_weight"`
	FootWeight    float64 `yaml:"foot_weight"`
	GeneralWeight float64 `yaml:"general_weight"`
	// Combined score = avg_share*weighted_average + max_share*max_region.
	AvgShare float64 `yaml:"avg_share"`
	MaxShare float64 `yaml:"max_share"`

	JerseyBoost        float64 `yaml:"jersey_boost"`
	HistoryBoostMin    float64 `yaml:"history_boost_min"`
	HistoryBoostMax    float64 `yaml:"history_boost_max"`
	RouteLockBoostMin  float64 `yaml:"route_lock_boost_min"`
	RouteLockBoostMax  float64 `yaml:"route_lock_boost_max"`
	BreadcrumbBoostMin float64 `yaml:"breadcrumb_boost_min"`
	BreadcrumbBoostMax float64 `yaml:"breadcrumb_boost_max"`

	BaseThreshold float64 `yaml:"base_threshold"`
	// Threshold adjustments: a small or low-diversity gallery raises
	// the bar, degraded detection quality lowers it.
	SmallGallerySize     int     `yaml:"small_gallery_size"`
	SmallGalleryRaise    float64 `yaml:"small_gallery_raise"`
	LowDiversityRatio    float64 `yaml:"low_diversity_ratio"`
	LowDiversityRaise    float64 `yaml:"low_diversity_raise"`
	PoorDetectionQuality float64 `yaml:"poor_detection_quality"`
	PoorDetectionDrop    float64 `yaml:"poor_detection_drop"`
}

// ArbiterConfig tunes the confidence hierarchy.
type ArbiterConfig struct {
	AnchorIoU            float64 `yaml:"anchor_iou"`
	AnchorCenterDistance float64 `yaml:"anchor_center_distance"`
	// RouteLockConfidence and RouteLockWindowFrames define when an
	// early assignment becomes a protected route lock.
	RouteLockConfidence   float64 `yaml:"route_lock_confidence"`
	RouteLockWindowFrames int     `yaml:"route_lock_window_frames"`
	// ChallengerPersistFrames is how many consecutive frames a
	// replacement candidate must win before it displaces a route lock.
	ChallengerPersistFrames int `yaml:"challenger_persist_frames"`
	DecisionWindow          int `yaml:"decision_window"`
	// DuplicateGraceFrames tolerates two tracks resolving to the same
	// player (track hand-off) before forcing the weaker one back.
	DuplicateGraceFrames int `yaml:"duplicate_grace_frames"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	SetDefaults(cfg)

	return cfg, nil
}

// Default returns a config with every default applied and no file
// read, for hosts that embed the engine directly.
func Default() *Config {
	cfg := &Config{}
	SetDefaults(cfg)
	return cfg
}

func SetDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Gallery.CheckpointPath == "" {
		cfg.Gallery.CheckpointPath = "data/gallery.json"
	}
	if cfg.Gallery.CheckpointInterval == 0 {
		cfg.Gallery.CheckpointInterval = 300
	}
	if cfg.Gallery.MaxReferenceFrames == 0 {
		cfg.Gallery.MaxReferenceFrames = 50
	}
	if cfg.Gallery.PruneTopQuantile == 0 {
		cfg.Gallery.PruneTopQuantile = 0.5
	}
	if cfg.Gallery.DuplicateSimilarity == 0 {
		cfg.Gallery.DuplicateSimilarity = 0.92
	}
	if cfg.Gallery.MaxHardNegatives == 0 {
		cfg.Gallery.MaxHardNegatives = 50
	}
	if cfg.Gallery.HardNegativeBandLow == 0 {
		cfg.Gallery.HardNegativeBandLow = 0.4
	}
	if cfg.Gallery.HardNegativeBandHigh == 0 {
		cfg.Gallery.HardNegativeBandHigh = 0.7
	}
	if cfg.Gallery.HardNegativePenalty == 0 {
		cfg.Gallery.HardNegativePenalty = 0.3
	}
	if cfg.Matcher.BodyWeight == 0 {
		cfg.Matcher.BodyWeight = 0.40
	}
	if cfg.Matcher.JerseyWeight == 0 {
		cfg.Matcher.JerseyWeight = 0.30
	}
	if cfg.Matcher.FootWeight == 0 {
		cfg.Matcher.FootWeight = 0.15
	}
	if cfg.Matcher.GeneralWeight == 0 {
		cfg.Matcher.GeneralWeight = 0.15
	}
	if cfg.Matcher.AvgShare == 0 {
		cfg.Matcher.AvgShare = 0.70
	}
	if cfg.Matcher.MaxShare == 0 {
		cfg.Matcher.MaxShare = 0.30
	}
	if cfg.Matcher.JerseyBoost == 0 {
		cfg.Matcher.JerseyBoost = 0.10
	}
	if cfg.Matcher.HistoryBoostMin == 0 {
		cfg.Matcher.HistoryBoostMin = 0.05
	}
	if cfg.Matcher.HistoryBoostMax == 0 {
		cfg.Matcher.HistoryBoostMax = 0.15
	}
	if cfg.Matcher.RouteLockBoostMin == 0 {
		cfg.Matcher.RouteLockBoostMin = 0.20
	}
	if cfg.Matcher.RouteLockBoostMax == 0 {
		cfg.Matcher.RouteLockBoostMax = 0.25
	}
	if cfg.Matcher.BreadcrumbBoostMin == 0 {
		cfg.Matcher.BreadcrumbBoostMin = 0.05
	}
	if cfg.Matcher.BreadcrumbBoostMax == 0 {
		cfg.Matcher.BreadcrumbBoostMax = 0.15
	}
	if cfg.Matcher.BaseThreshold == 0 {
		cfg.Matcher.BaseThreshold = 0.50
	}
	if cfg.Matcher.SmallGallerySize == 0 {
		cfg.Matcher.SmallGallerySize = 4
	}
	if cfg.Matcher.SmallGalleryRaise == 0 {
		cfg.Matcher.SmallGalleryRaise = 0.05
	}
	if cfg.Matcher.LowDiversityRatio == 0 {
		cfg.Matcher.LowDiversityRatio = 1.2
	}
	if cfg.Matcher.LowDiversityRaise == 0 {
		cfg.Matcher.LowDiversityRaise = 0.05
	}
	if cfg.Matcher.PoorDetectionQuality == 0 {
		cfg.Matcher.PoorDetectionQuality = 0.5
	}
	if cfg.Matcher.PoorDetectionDrop == 0 {
		cfg.Matcher.PoorDetectionDrop = 0.05
	}
	if cfg.Arbiter.AnchorIoU == 0 {
		cfg.Arbiter.AnchorIoU = 0.2
	}
	if cfg.Arbiter.AnchorCenterDistance == 0 {
		cfg.Arbiter.AnchorCenterDistance = 150
	}
	if cfg.Arbiter.RouteLockConfidence == 0 {
		cfg.Arbiter.RouteLockConfidence = 0.75
	}
	if cfg.Arbiter.RouteLockWindowFrames == 0 {
		cfg.Arbiter.RouteLockWindowFrames = 150
	}
	if cfg.Arbiter.ChallengerPersistFrames == 0 {
		cfg.Arbiter.ChallengerPersistFrames = 3
	}
	if cfg.Arbiter.DecisionWindow == 0 {
		cfg.Arbiter.DecisionWindow = 7
	}
	if cfg.Arbiter.DuplicateGraceFrames == 0 {
		cfg.Arbiter.DuplicateGraceFrames = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLAYERID_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PLAYERID_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PLAYERID_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PLAYERID_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PLAYERID_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PLAYERID_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PLAYERID_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PLAYERID_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PLAYERID_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("PLAYERID_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("PLAYERID_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("PLAYERID_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("PLAYERID_GALLERY_PATH"); v != "" {
		cfg.Gallery.CheckpointPath = v
	}
	if v := os.Getenv("PLAYERID_MAX_REFERENCE_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gallery.MaxReferenceFrames = n
		}
	}
	if v := os.Getenv("PLAYERID_BASE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matcher.BaseThreshold = f
		}
	}
}
