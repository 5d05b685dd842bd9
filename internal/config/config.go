package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		File       string `yaml:"file"`
		DocumentID string `yaml:"document_id"`
	} `yaml:"quiz"`
	Bitable struct {
		BaseURL   string `yaml:"base_url"`
		AppID     string `yaml:"app_id"`
		AppSecret string `yaml:"app_secret"`
		AppToken  string `yaml:"app_token"`
		TableID   string `yaml:"table_id"`
	} `yaml:"bitable"`
	Admin struct {
		Secret string `yaml:"secret"`
	} `yaml:"admin"`
}

// Load reads YAML config from path. A missing file yields the zero
// config so the server can run on defaults alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or bad.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
