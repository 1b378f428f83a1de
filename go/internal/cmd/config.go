package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration: built-in defaults, overlaid by an
// optional YAML file, overlaid by environment variables.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		SpeakersFile string `yaml:"speakers_file"`
		ImagesDir    string `yaml:"images_dir"`
	} `yaml:"storage"`
	Chrono struct {
		AutoStop bool   `yaml:"autostop"`
		Title    string `yaml:"title"`
	} `yaml:"chrono"`
	Nats struct {
		URL           string `yaml:"url"` // empty disables the mirror
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	LogLevel string `yaml:"log_level"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Storage.SpeakersFile = "./data/speakers.json"
	cfg.Storage.ImagesDir = "./data/images"
	cfg.Chrono.AutoStop = true
	cfg.Nats.SubjectPrefix = "chrono.events"
	cfg.LogLevel = "info"
	return cfg
}

// loadConfig reads path over the defaults (a missing file is fine), then
// applies environment overrides.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Storage.SpeakersFile = getEnv("SPEAKERS_FILE", config.Storage.SpeakersFile)
	config.Storage.ImagesDir = getEnv("IMAGES_DIR", config.Storage.ImagesDir)
	config.Chrono.AutoStop = getEnvAsBool("CHRONO_AUTOSTOP", config.Chrono.AutoStop)
	config.Chrono.Title = getEnv("CHRONO_TITLE", config.Chrono.Title)
	config.Nats.URL = getEnv("NATS_URL", config.Nats.URL)
	config.Nats.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", config.Nats.SubjectPrefix)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)

	return config, nil
}

func (c *Config) zerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
