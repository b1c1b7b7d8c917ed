package config

import (
	"fmt"
	"os"

	"scrollmode/feed"
	"scrollmode/models"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
)

// TomlServer holds the HTTP server configuration
type TomlServer struct {
	Hostname string `toml:"hostname"`
	Port     int    `toml:"port"`
}

// TomlFeed holds the scroll-mode batch configuration
type TomlFeed struct {
	InitialBatch   int `toml:"initial_batch"`
	MoreBatch      int `toml:"more_batch"`
	PerSourceLimit int `toml:"per_source_limit"`
}

// TomlCollection selects one tracked content collection
type TomlCollection struct {
	Tag string `toml:"tag"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Server      TomlServer       `toml:"server"`
	Feed        TomlFeed         `toml:"feed"`
	Collections []TomlCollection `toml:"collections"`
}

// DefaultConfig aggregates every tracked collection with the stock
// batch sizes.
func DefaultConfig() *TomlConfig {
	return &TomlConfig{
		Server: TomlServer{
			Hostname: "localhost",
			Port:     3000,
		},
		Feed: TomlFeed{
			InitialBatch:   10,
			MoreBatch:      8,
			PerSourceLimit: 50,
		},
		Collections: lo.Map(models.SourceTypes, func(tag models.SourceType, _ int) TomlCollection {
			return TomlCollection{Tag: string(tag)}
		}),
	}
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	if len(config.Collections) == 0 {
		config.Collections = DefaultConfig().Collections
	}

	return &config, nil
}

func validate(config *TomlConfig) error {
	seen := make(map[string]bool)
	for _, collection := range config.Collections {
		if !lo.Contains(models.SourceTypes, models.SourceType(collection.Tag)) {
			return fmt.Errorf("unknown collection tag: %s", collection.Tag)
		}
		if seen[collection.Tag] {
			return fmt.Errorf("duplicate collection tag: %s", collection.Tag)
		}
		seen[collection.Tag] = true
	}
	return nil
}

// FeedOptions converts the configuration into session options.
func (config *TomlConfig) FeedOptions() feed.Options {
	return feed.Options{
		Collections: lo.Map(config.Collections, func(collection TomlCollection, _ int) models.SourceType {
			return models.SourceType(collection.Tag)
		}),
		PerSourceLimit: config.Feed.PerSourceLimit,
		InitialBatch:   config.Feed.InitialBatch,
		MoreBatch:      config.Feed.MoreBatch,
	}
}
