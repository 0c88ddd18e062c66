package config

import (
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/viper"

	"github.com/delthas/giteart/pkg/domain/types"
	"github.com/delthas/giteart/pkg/infra/builds"
	"github.com/delthas/giteart/pkg/infra/git"
)

// DefaultServicePath is read when no configuration file is given
const DefaultServicePath = "giteart.yml"

const (
	GitBackendExec   = "exec"
	GitBackendNative = "native"

	DefaultSubmitTimeout = 60 * time.Second
)

// Service is the bridge configuration read from the configuration file.
// It is immutable once loaded.
type Service struct {
	Token              string        `mapstructure:"token" masq:"secret"`
	Secret             string        `mapstructure:"secret" masq:"secret"`
	Port               int           `mapstructure:"port"`
	Readers            []string      `mapstructure:"readers"`
	Instance           string        `mapstructure:"instance"`
	EnableTagDetection bool          `mapstructure:"enable_tag_detection"`
	EnableSkipCIMarker bool          `mapstructure:"enable_skip_ci_marker"`
	GitBackend         string        `mapstructure:"git_backend"`
	CloneTimeout       time.Duration `mapstructure:"clone_timeout"`
	TagTimeout         time.Duration `mapstructure:"tag_timeout"`
	SubmitTimeout      time.Duration `mapstructure:"submit_timeout"`
	SlackWebhookURL    string        `mapstructure:"slack_webhook_url" masq:"secret"`
}

var serviceKeys = []string{
	"token",
	"secret",
	"port",
	"readers",
	"instance",
	"enable_tag_detection",
	"enable_skip_ci_marker",
	"git_backend",
	"clone_timeout",
	"tag_timeout",
	"submit_timeout",
	"slack_webhook_url",
}

// LoadService reads the configuration file at path. Every key can be
// overridden by a GITEART_<KEY> environment variable.
func LoadService(path string) (*Service, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GITEART")
	for _, key := range serviceKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, goerr.Wrap(err, "failed to bind environment variable", goerr.V("key", key))
		}
	}

	v.SetDefault("instance", builds.DefaultInstance)
	v.SetDefault("enable_tag_detection", true)
	v.SetDefault("enable_skip_ci_marker", true)
	v.SetDefault("git_backend", GitBackendExec)
	v.SetDefault("clone_timeout", git.DefaultCloneTimeout)
	v.SetDefault("tag_timeout", git.DefaultTagTimeout)
	v.SetDefault("submit_timeout", DefaultSubmitTimeout)

	if err := v.ReadInConfig(); err != nil {
		return nil, goerr.Wrap(err, "failed to read configuration file",
			goerr.T(types.ErrTagConfig),
			goerr.V("path", path),
		)
	}

	for _, key := range []string{"token", "secret", "port"} {
		if !v.IsSet(key) {
			return nil, goerr.New("missing required configuration key",
				goerr.T(types.ErrTagConfig),
				goerr.V("key", key),
				goerr.V("path", path),
			)
		}
	}

	var svc Service
	if err := v.Unmarshal(&svc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode configuration",
			goerr.T(types.ErrTagConfig),
			goerr.V("path", path),
		)
	}

	if err := svc.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid configuration", goerr.V("path", path))
	}

	return &svc, nil
}

// Validate checks value constraints that decoding cannot express
func (s *Service) Validate() error {
	if s.Token == "" {
		return goerr.New("token must not be empty", goerr.T(types.ErrTagConfig))
	}
	if s.Port < 1 || s.Port > 65535 {
		return goerr.New("port out of range", goerr.T(types.ErrTagConfig), goerr.V("port", s.Port))
	}
	switch s.GitBackend {
	case GitBackendExec, GitBackendNative:
	default:
		return goerr.New("unknown git backend",
			goerr.T(types.ErrTagConfig),
			goerr.V("git_backend", s.GitBackend),
		)
	}
	if s.CloneTimeout <= 0 || s.TagTimeout <= 0 {
		return goerr.New("git timeouts must be positive",
			goerr.T(types.ErrTagConfig),
			goerr.V("clone_timeout", s.CloneTimeout),
			goerr.V("tag_timeout", s.TagTimeout),
		)
	}
	if s.SubmitTimeout < 0 {
		return goerr.New("submit timeout must not be negative",
			goerr.T(types.ErrTagConfig),
			goerr.V("submit_timeout", s.SubmitTimeout),
		)
	}
	return nil
}
