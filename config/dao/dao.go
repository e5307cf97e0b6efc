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

// Package dao provides the per-DAO futarchy parameter set. Parameters are
// loaded from a YAML file and validated before any proposal can reference
// them.
package dao

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the governance parameters a DAO configures once and applies to
// every proposal it runs.
type Config struct {
	// Sponsorship
	SponsorshipEnabled        bool   `yaml:"sponsorshipEnabled"`
	SponsorThresholdReduction uint64 `yaml:"sponsorThresholdReduction"`

	// Early resolution
	MinSpread            uint64 `yaml:"minSpread"`
	FlipWindowMs         int64  `yaml:"flipWindowMs"          validate:"gte=0"`
	BaseMaxFlips         int    `yaml:"baseMaxFlips"          validate:"gte=0"`
	AdaptiveFlipScaling  bool   `yaml:"adaptiveFlipScaling"`
	EarlyResolveMinAgeMs int64  `yaml:"earlyResolveMinAgeMs"  validate:"gte=0"`
	EarlyResolveMaxAgeMs int64  `yaml:"earlyResolveMaxAgeMs"  validate:"gte=0,gtefield=EarlyResolveMinAgeMs"`

	// Rewards (stable asset base units, drawn from protocol revenue)
	KeeperReward uint64 `yaml:"keeperReward"`
	CreatorBonus uint64 `yaml:"creatorBonus"`

	// Default proposal periods
	ReviewPeriodMs   int64 `yaml:"reviewPeriodMs"   validate:"gt=0"`
	TradingPeriodMs  int64 `yaml:"tradingPeriodMs"  validate:"gt=0"`
	TwapStartDelayMs int64 `yaml:"twapStartDelayMs" validate:"gte=0"`
}

// Validate checks the parameter set for internal consistency.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid DAO config: %w", err)
	}
	if c.TwapStartDelayMs >= c.TradingPeriodMs {
		return fmt.Errorf(
			"invalid DAO config: twapStartDelayMs (%d) must be less than tradingPeriodMs (%d)",
			c.TwapStartDelayMs,
			c.TradingPeriodMs,
		)
	}
	return nil
}

// Load reads and validates a DAO config from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading DAO config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a DAO config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing DAO config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
