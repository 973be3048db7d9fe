package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/state"
)

// FileName is the settings file looked up in the project directory.
const FileName = ".quicksetup"

// EnvPrefix prefixes environment overrides, e.g. QUICKSETUP_REGION.
const EnvPrefix = "QUICKSETUP"

// Settings are the tool's own options, separate from the declaration set.
type Settings struct {
	Region          string              `mapstructure:"region"`
	Profile         string              `mapstructure:"profile"`
	Parallelism     int                 `mapstructure:"parallelism"`
	ContinueOnError bool                `mapstructure:"continue_on_error"`
	Refresh         bool                `mapstructure:"refresh"`
	LogLevel        string              `mapstructure:"log_level"`
	Backend         state.BackendConfig `mapstructure:"backend"`

	// ConfigFile is the settings file that was read, empty if none.
	ConfigFile string `mapstructure:"-"`
}

// flagKeys maps command-line flags onto settings keys.
var flagKeys = map[string]string{
	"region":            "region",
	"profile":           "profile",
	"parallelism":       "parallelism",
	"continue-on-error": "continue_on_error",
	"log-level":         "log_level",
}

func defaults(v *viper.Viper) {
	v.SetDefault("region", "us-east-1")
	v.SetDefault("profile", "")
	v.SetDefault("parallelism", 1)
	v.SetDefault("continue_on_error", false)
	v.SetDefault("refresh", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("backend.type", "local")
	v.SetDefault("backend.path", state.DefaultPath)
	v.SetDefault("backend.bucket", "")
	v.SetDefault("backend.key", state.DefaultS3Key)
	v.SetDefault("backend.region", "")
	v.SetDefault("backend.dynamodb_table", "")
	v.SetDefault("backend.encrypt", false)
	v.SetDefault("backend.profile", "")
}

// Load reads settings with increasing precedence from defaults,
// <projectDir>/.quicksetup.yaml, QUICKSETUP_* environment variables and the
// flags in fs that were set explicitly. fs may be nil.
func Load(projectDir string, fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(projectDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
		if f := fs.Lookup("no-refresh"); f != nil && f.Changed && f.Value.String() == "true" {
			v.Set("refresh", false)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.ConfigFile = v.ConfigFileUsed()

	if s.Backend.Region == "" {
		s.Backend.Region = s.Region
	}
	if s.Backend.Profile == "" {
		s.Backend.Profile = s.Profile
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports settings that cannot work together.
func (s *Settings) Validate() error {
	var errs []error
	if s.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism must be at least 1, got %d", s.Parallelism))
	}
	switch s.Backend.Type {
	case "local":
	case "s3":
		if s.Backend.Bucket == "" {
			errs = append(errs, errors.New("backend.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend type %q", s.Backend.Type))
	}
	return errors.Join(errs...)
}
