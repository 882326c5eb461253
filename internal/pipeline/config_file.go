package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/resolver"
)

// fileConfig is the YAML shape of a pipeline tuning file. Stage-keyed
// sections use the stage name as key; omitted sections keep defaults.
type fileConfig struct {
	ChunkSize            int                      `yaml:"chunkSize"`
	MaxConcurrentExtract int                      `yaml:"maxConcurrentExtract"`
	Retry                map[string]RetryPolicy   `yaml:"retry"`
	Poll                 *PollPolicy              `yaml:"poll"`
	StageTimeout         map[string]time.Duration `yaml:"stageTimeout"`
	LockTTL              map[string]time.Duration `yaml:"lockTTL"`
	TTLs                 *cache.TTLConfig         `yaml:"ttls"`
	Resolver             *resolver.Config         `yaml:"resolver"`
}

// LoadConfig reads a YAML tuning file and overlays it onto the defaults.
// An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read pipeline config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("failed to parse pipeline config: %w", err)
	}

	if fc.ChunkSize > 0 {
		cfg.ChunkSize = fc.ChunkSize
	}
	if fc.MaxConcurrentExtract > 0 {
		cfg.MaxConcurrentExtract = fc.MaxConcurrentExtract
	}
	if fc.Poll != nil {
		cfg.Poll = *fc.Poll
	}
	if fc.TTLs != nil {
		cfg.TTLs = *fc.TTLs
	}
	if fc.Resolver != nil {
		cfg.Resolver = *fc.Resolver
	}

	for name, policy := range fc.Retry {
		stage, err := models.ParseStage(name)
		if err != nil {
			return cfg, fmt.Errorf("retry section: %w", err)
		}
		cfg.Retry[stage] = policy
	}
	for name, d := range fc.StageTimeout {
		stage, err := models.ParseStage(name)
		if err != nil {
			return cfg, fmt.Errorf("stageTimeout section: %w", err)
		}
		cfg.StageTimeout[stage] = d
	}
	for name, d := range fc.LockTTL {
		stage, err := models.ParseStage(name)
		if err != nil {
			return cfg, fmt.Errorf("lockTTL section: %w", err)
		}
		cfg.LockTTL[stage] = d
	}

	return cfg, nil
}
