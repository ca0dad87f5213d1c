// Package config loads runtime settings from the environment.
//
// Values come from process env, optionally seeded from .env and .env.local.
// A Config is built once by the binary and passed down; there is no global.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// DefaultEnvFiles are loaded, when present, before parsing.
var DefaultEnvFiles = []string{".env", ".env.local"}

type Config struct {
	DBPath            string `env:"CONTRIB_DB_PATH" envDefault:"./data/contrib.db" validate:"required"`
	City              string `env:"CONTRIB_CITY" envDefault:"shenzhen" validate:"required"`
	BaselineChunkSize int    `env:"CONTRIB_BASELINE_CHUNK_SIZE" envDefault:"500" validate:"gt=0"`
	LoadParallelism   int    `env:"CONTRIB_LOAD_PARALLELISM" envDefault:"4" validate:"gt=0"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info" validate:"required"`
	LogFormat         string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
}

// validate reports failures under their environment variable names.
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	return v
}()

// LoadEnv loads the env files that exist and returns how many were read.
// Variables already set in the process win.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files and parses the environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	c := &Config{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: failed %s%s check (got %v)", fe.Field(), fe.Tag(), paramSuffix(fe.Param()), fe.Value()))
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// NewLogger builds a logrus logger writing to out with the configured level
// and format.
func (c *Config) NewLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
