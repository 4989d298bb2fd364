package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr  = "0.0.0.0:8080"
	DefaultBasePath    = "/download"
	DefaultLogFormat   = "text"
	DefaultLogLevel    = "info"
	DefaultMaxHeader   = 1 << 20 // 1 MiB
	DefaultBufferSize  = 20480
	DefaultBackend     = "local"
	DefaultHealthLive  = "/healthz"
	DefaultHealthReady = "/readyz"
	DefaultTLSMode     = "self_signed"

	BackendLocal = "local"
	BackendHDFS  = "hdfs"
	BackendS3    = "s3"
)

var allowedTLSModes = map[string]struct{}{
	"self_signed": {},
	"manual":      {},
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Download DownloadConfig `yaml:"download"`
	Storage  StorageConfig  `yaml:"storage"`
	TLS      TLSConfig      `yaml:"tls"`
	Health   HealthConfig   `yaml:"health"`
}

type ServerConfig struct {
	ListenAddress     string `yaml:"listen_address" env:"DFSGATE_LISTEN_ADDRESS" validate:"required"`
	BasePath          string `yaml:"base_path" env:"DFSGATE_BASE_PATH" validate:"required,startswith=/"`
	LogFormat         string `yaml:"log_format" env:"DFSGATE_LOG_FORMAT" validate:"oneof=text json"`
	LogLevel          string `yaml:"log_level" env:"DFSGATE_LOG_LEVEL" validate:"oneof=debug info warn error"`
	MaxHeaderBytes    int    `yaml:"max_header_bytes" env:"DFSGATE_MAX_HEADER_BYTES" validate:"gt=0"`
	TrustProxyHeaders bool   `yaml:"trust_proxy_headers" env:"DFSGATE_TRUST_PROXY_HEADERS"`
}

type DownloadConfig struct {
	BufferSize        int `yaml:"buffer_size" env:"DFSGATE_BUFFER_SIZE" validate:"gt=0"`
	MaxBytesPerSecond int `yaml:"max_bytes_per_second" env:"DFSGATE_MAX_BYTES_PER_SECOND" validate:"gte=0"`
}

type StorageConfig struct {
	Backend string             `yaml:"backend" env:"DFSGATE_STORAGE_BACKEND" validate:"oneof=local hdfs s3"`
	Root    string             `yaml:"root" env:"DFSGATE_STORAGE_ROOT"`
	Local   StorageLocalConfig `yaml:"local"`
	HDFS    StorageHDFSConfig  `yaml:"hdfs"`
	S3      StorageS3Config    `yaml:"s3"`
}

type StorageLocalConfig struct {
	DataDir string `yaml:"data_dir" env:"DFSGATE_LOCAL_DATA_DIR"`
}

type StorageHDFSConfig struct {
	Namenodes     []string `yaml:"namenodes" env:"DFSGATE_HDFS_NAMENODES,separator=;"`
	User          string   `yaml:"user" env:"DFSGATE_HDFS_USER"`
	UseHadoopConf bool     `yaml:"use_hadoop_conf" env:"DFSGATE_HDFS_USE_HADOOP_CONF"`
}

type StorageS3Config struct {
	Bucket       string `yaml:"bucket" env:"DFSGATE_S3_BUCKET"`
	Region       string `yaml:"region" env:"DFSGATE_S3_REGION"`
	Endpoint     string `yaml:"endpoint" env:"DFSGATE_S3_ENDPOINT" validate:"omitempty,url"`
	UsePathStyle bool   `yaml:"use_path_style" env:"DFSGATE_S3_USE_PATH_STYLE"`
	// AccessKeyEnv and SecretKeyEnv name the variables holding static
	// credentials; when unset the AWS default chain applies.
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
}

type TLSConfig struct {
	Enabled bool   `yaml:"enabled" env:"DFSGATE_TLS_ENABLED"`
	Mode    string `yaml:"mode" env:"DFSGATE_TLS_MODE"`

	CertFile string `yaml:"cert_file" env:"DFSGATE_TLS_CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"DFSGATE_TLS_KEY_FILE"`

	SelfSigned TLSSelfSignedConfig `yaml:"self_signed"`
}

type TLSSelfSignedConfig struct {
	CommonName string `yaml:"common_name"`
	ValidDays  int    `yaml:"valid_days"`
}

type HealthConfig struct {
	Enabled   bool   `yaml:"enabled" env:"DFSGATE_HEALTH_ENABLED"`
	PathLive  string `yaml:"path_live"`
	PathReady string `yaml:"path_ready"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddress:  DefaultListenAddr,
			BasePath:       DefaultBasePath,
			LogFormat:      DefaultLogFormat,
			LogLevel:       DefaultLogLevel,
			MaxHeaderBytes: DefaultMaxHeader,
		},
		Download: DownloadConfig{
			BufferSize: DefaultBufferSize,
		},
		Storage: StorageConfig{
			Backend: DefaultBackend,
			Root:    "/",
			Local: StorageLocalConfig{
				DataDir: "./data",
			},
			S3: StorageS3Config{
				AccessKeyEnv: "DFSGATE_S3_ACCESS_KEY",
				SecretKeyEnv: "DFSGATE_S3_SECRET_KEY",
			},
		},
		TLS: TLSConfig{
			Mode: DefaultTLSMode,
			SelfSigned: TLSSelfSignedConfig{
				CommonName: "localhost",
				ValidDays:  365,
			},
		},
		Health: HealthConfig{
			Enabled:   true,
			PathLive:  DefaultHealthLive,
			PathReady: DefaultHealthReady,
		},
	}
}

// LoadFile reads path over Default, applies DFSGATE_* overrides from the
// process environment and validates the result.
func LoadFile(path string) (Config, error) {
	return Load(path, os.Environ())
}

// Load is LoadFile with an explicit environment in os.Environ form. An empty
// path skips the file and uses defaults plus overrides.
func Load(path string, environ []string) (Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	envSet, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := env.Unmarshal(envSet, &cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	errs = append(errs, validateStruct(c)...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateTLS()...)
	errs = append(errs, c.validateHealth()...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func validateStruct(c Config) []error {
	err := structValidator.Struct(c)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []error{fmt.Errorf("config validation: %w", err)}
	}
	errs := make([]error, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		field := strings.TrimPrefix(fieldErr.Namespace(), "Config.")
		rule := fieldErr.Tag()
		if fieldErr.Param() != "" {
			rule += "=" + fieldErr.Param()
		}
		errs = append(errs, fmt.Errorf("config validation: %s must satisfy %s, got %v", field, rule, fieldErr.Value()))
	}
	return errs
}

func (c Config) validateStorage() []error {
	var errs []error
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.Local.DataDir == "" {
			errs = append(errs, errors.New("config validation: storage.local.data_dir is required when storage.backend=local"))
		}
	case BackendHDFS:
		if len(c.Storage.HDFS.Namenodes) == 0 && !c.Storage.HDFS.UseHadoopConf {
			errs = append(errs, errors.New("config validation: storage.hdfs.namenodes is required when storage.backend=hdfs and storage.hdfs.use_hadoop_conf=false"))
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("config validation: storage.s3.bucket is required when storage.backend=s3"))
		}
		if (c.Storage.S3.AccessKeyEnv == "") != (c.Storage.S3.SecretKeyEnv == "") {
			errs = append(errs, errors.New("config validation: storage.s3.access_key_env and storage.s3.secret_key_env must be set together"))
		}
	}
	if c.Storage.Root != "" && !strings.HasPrefix(c.Storage.Root, "/") {
		errs = append(errs, errors.New("config validation: storage.root must start with '/'"))
	}
	return errs
}

func (c Config) validateTLS() []error {
	var errs []error
	if !c.TLS.Enabled {
		return errs
	}

	if _, ok := allowedTLSModes[c.TLS.Mode]; !ok {
		errs = append(errs, fmt.Errorf("config validation: tls.mode must be one of [self_signed manual], got %q", c.TLS.Mode))
		return errs
	}

	switch c.TLS.Mode {
	case "manual":
		if c.TLS.CertFile == "" {
			errs = append(errs, errors.New("config validation: tls.cert_file is required when tls.mode=manual"))
		}
		if c.TLS.KeyFile == "" {
			errs = append(errs, errors.New("config validation: tls.key_file is required when tls.mode=manual"))
		}
		if c.TLS.CertFile != "" {
			if statErr := validateReadableFile(c.TLS.CertFile); statErr != nil {
				errs = append(errs, fmt.Errorf("config validation: tls.cert_file: %w", statErr))
			}
		}
		if c.TLS.KeyFile != "" {
			if statErr := validateReadableFile(c.TLS.KeyFile); statErr != nil {
				errs = append(errs, fmt.Errorf("config validation: tls.key_file: %w", statErr))
			}
		}
	case "self_signed":
		if c.TLS.SelfSigned.CommonName == "" {
			errs = append(errs, errors.New("config validation: tls.self_signed.common_name is required when tls.mode=self_signed"))
		}
		if c.TLS.SelfSigned.ValidDays <= 0 {
			errs = append(errs, errors.New("config validation: tls.self_signed.valid_days must be > 0 when tls.mode=self_signed"))
		}
	}

	return errs
}

func (c Config) validateHealth() []error {
	if !c.Health.Enabled {
		return nil
	}
	var errs []error
	if c.Health.PathLive == "" {
		errs = append(errs, errors.New("config validation: health.path_live is required when health.enabled=true"))
	} else if !strings.HasPrefix(c.Health.PathLive, "/") {
		errs = append(errs, errors.New("config validation: health.path_live must start with '/'"))
	}
	if c.Health.PathReady == "" {
		errs = append(errs, errors.New("config validation: health.path_ready is required when health.enabled=true"))
	} else if !strings.HasPrefix(c.Health.PathReady, "/") {
		errs = append(errs, errors.New("config validation: health.path_ready must start with '/'"))
	}
	if c.Health.PathLive == c.Health.PathReady {
		errs = append(errs, errors.New("config validation: health.path_live and health.path_ready must be different"))
	}
	base := strings.TrimSuffix(c.Server.BasePath, "/")
	for _, p := range []string{c.Health.PathLive, c.Health.PathReady} {
		if p != "" && base != "" && strings.HasPrefix(p, base+"/") {
			errs = append(errs, fmt.Errorf("config validation: health path %q must not fall under server.base_path %q", p, c.Server.BasePath))
		}
	}
	return errs
}

func validateReadableFile(path string) error {
	cleaned := filepath.Clean(path)
	info, err := os.Stat(cleaned)
	if err != nil {
		return fmt.Errorf("%q is not readable: %w", cleaned, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%q points to a directory", cleaned)
	}
	return nil
}
