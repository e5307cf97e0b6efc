// Copyright 2025 Govex DAO
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/govex-dao/futarchy/config/dao"
)

type ctxKey string

const configContextKey ctxKey = "futarchy.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// DaoEntry references one DAO served by the engine: its stable id and the
// path to its governance parameter file
type DaoEntry struct {
	Id     string `yaml:"id"`
	Config string `yaml:"config"`
}

type Config struct {
	DatabasePath       string     `yaml:"databasePath"                         split_words:"true"`
	BindAddr           string     `yaml:"bindAddr"                             split_words:"true"`
	ShutdownTimeout    string     `yaml:"shutdownTimeout"                      split_words:"true"`
	KeeperIdentity     string     `yaml:"keeperIdentity"                       split_words:"true"`
	KeeperInterval     string     `yaml:"keeperInterval"                       split_words:"true"`
	SponsorQuotaWindow string     `yaml:"sponsorQuotaWindow"                   split_words:"true"`
	Daos               []DaoEntry `yaml:"daos"                                 ignored:"true"`
	SponsorQuota       int        `yaml:"sponsorQuota"                         split_words:"true"`
	MetricsPort        uint       `yaml:"metricsPort"                          split_words:"true"`
	KeeperDisabled     bool       `yaml:"keeperDisabled"                       split_words:"true"`
	EarlyResolve       bool       `yaml:"earlyResolve"                         split_words:"true"`
	Debug              bool       `yaml:"debug"`
}

var globalConfig = &Config{
	DatabasePath:       ".futarchy",
	BindAddr:           "0.0.0.0",
	MetricsPort:        12798,
	ShutdownTimeout:    DefaultShutdownTimeout,
	KeeperIdentity:     "keeper",
	KeeperInterval:     "1s",
	SponsorQuota:       3,
	SponsorQuotaWindow: "168h",
	EarlyResolve:       false,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.futarchy/futarchy.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".futarchy", "futarchy.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/futarchy/futarchy.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/futarchy/futarchy.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	err := envconfig.Process("futarchy", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}

// LoadDaoConfigs reads and validates every referenced DAO parameter file
func (c *Config) LoadDaoConfigs() (map[uuid.UUID]*dao.Config, error) {
	daoConfigs := make(map[uuid.UUID]*dao.Config)
	for _, entry := range c.Daos {
		daoId, err := uuid.Parse(entry.Id)
		if err != nil {
			return nil, fmt.Errorf("invalid DAO id %q: %w", entry.Id, err)
		}
		daoCfg, err := dao.Load(entry.Config)
		if err != nil {
			return nil, fmt.Errorf("loading DAO %s: %w", entry.Id, err)
		}
		daoConfigs[daoId] = daoCfg
	}
	return daoConfigs, nil
}
