package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Source    SourceConfig    `yaml:"source"`
	Detect    DetectConfig    `yaml:"detect"`
	Detectors DetectorsConfig `yaml:"detectors"`
	UI        UIConfig        `yaml:"ui"`
	Logging   LoggingConfig   `yaml:"logging"`
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

// SourceConfig describes the upstream event source (a Frigate-compatible
// NVR). Events arrive on the bus; images are fetched back from the source by
// reference.
type SourceConfig struct {
	// URL is used for every topic unless URLs provides a per-topic override
	// (index-aligned with Topics).
	URL             string       `yaml:"url"`
	URLs            []string     `yaml:"urls"`
	Topics          []string     `yaml:"topics"`
	Cameras         []string     `yaml:"cameras"`
	Zones           []CameraZone `yaml:"zones"`
	Labels          []string     `yaml:"labels"`
	MinArea         float64      `yaml:"min_area"`
	UpdateSubLabels bool         `yaml:"update_sub_labels"`
	SeenIDs         int          `yaml:"seen_ids"`
}

// CameraZone scopes admission for one camera to a named zone.
type CameraZone struct {
	Camera string `yaml:"camera"`
	Zone   string `yaml:"zone"`
}

// DetectConfig holds match policy thresholds, optionally overridden per camera.
type DetectConfig struct {
	Match   MatchPolicy               `yaml:"match"`
	Unknown UnknownPolicy             `yaml:"unknown"`
	Cameras map[string]DetectSettings `yaml:"cameras"`
}

type MatchPolicy struct {
	Confidence float64 `yaml:"confidence"`
	MinArea    float64 `yaml:"min_area"`
}

type UnknownPolicy struct {
	Confidence float64 `yaml:"confidence"`
}

// DetectSettings is the resolved match policy for one camera.
type DetectSettings struct {
	Match   MatchPolicy   `yaml:"match"`
	Unknown UnknownPolicy `yaml:"unknown"`
}

// ForCamera resolves the detect settings for a camera, falling back to the
// global thresholds for any unset override field.
func (d DetectConfig) ForCamera(camera string) DetectSettings {
	s, ok := d.Cameras[camera]
	if !ok {
		return DetectSettings{Match: d.Match, Unknown: d.Unknown}
	}
	if s.Match.Confidence == 0 {
		s.Match.Confidence = d.Match.Confidence
	}
	if s.Match.MinArea == 0 {
		s.Match.MinArea = d.Match.MinArea
	}
	if s.Unknown.Confidence == 0 {
		s.Unknown.Confidence = d.Unknown.Confidence
	}
	return s
}

// DetectorsConfig is the closed set of backend variants. A nil entry means
// that backend is not configured.
type DetectorsConfig struct {
	CompreFace  *CompreFaceConfig  `yaml:"compreface"`
	DeepStack   *DeepStackConfig   `yaml:"deepstack"`
	Rekognition *RekognitionConfig `yaml:"rekognition"`
}

type CompreFaceConfig struct {
	URL              string        `yaml:"url"`
	Key              string        `yaml:"key"`
	Timeout          time.Duration `yaml:"timeout"`
	DetProbThreshold float64       `yaml:"det_prob_threshold"`
	FacePlugins      string        `yaml:"face_plugins"`
}

type DeepStackConfig struct {
	URL     string        `yaml:"url"`
	Key     string        `yaml:"key"`
	Timeout time.Duration `yaml:"timeout"`
}

type RekognitionConfig struct {
	Region          string        `yaml:"region"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	CollectionID    string        `yaml:"collection_id"`
	Timeout         time.Duration `yaml:"timeout"`
}

type UIConfig struct {
	PaginationLimit int `yaml:"pagination_limit"`
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
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if len(cfg.Source.Topics) == 0 {
		cfg.Source.Topics = []string{"frigate/events"}
	}
	if len(cfg.Source.Labels) == 0 {
		cfg.Source.Labels = []string{"person"}
	}
	if cfg.Source.SeenIDs == 0 {
		cfg.Source.SeenIDs = 1000
	}
	if cfg.Detect.Match.Confidence == 0 {
		cfg.Detect.Match.Confidence = 60
	}
	if cfg.Detect.Match.MinArea == 0 {
		cfg.Detect.Match.MinArea = 10000
	}
	if cfg.Detect.Unknown.Confidence == 0 {
		cfg.Detect.Unknown.Confidence = 40
	}
	if cfg.Detectors.CompreFace != nil && cfg.Detectors.CompreFace.Timeout == 0 {
		cfg.Detectors.CompreFace.Timeout = 15 * time.Second
	}
	if cfg.Detectors.DeepStack != nil && cfg.Detectors.DeepStack.Timeout == 0 {
		cfg.Detectors.DeepStack.Timeout = 15 * time.Second
	}
	if cfg.Detectors.Rekognition != nil && cfg.Detectors.Rekognition.Timeout == 0 {
		cfg.Detectors.Rekognition.Timeout = 15 * time.Second
	}
	if cfg.UI.PaginationLimit == 0 {
		cfg.UI.PaginationLimit = 50
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEGATE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACEGATE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEGATE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEGATE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEGATE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEGATE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEGATE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACEGATE_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEGATE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEGATE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEGATE_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACEGATE_SOURCE_URL"); v != "" {
		cfg.Source.URL = v
	}
	if v := os.Getenv("FACEGATE_SOURCE_LABELS"); v != "" {
		cfg.Source.Labels = strings.Split(v, ",")
	}
}
