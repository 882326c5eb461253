package pipeline

import (
	"time"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/resolver"
)

// RetryPolicy is the explicit per-stage retry parameter object: how many
// attempts a stage gets and how re-attempts back off.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
}

// Delay returns the backoff before re-running after the given (1-based)
// failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// PollPolicy bounds the external-job poll loop: exponential backoff from
// InitialDelay up to MaxDelay, for at most MaxAttempts checks.
type PollPolicy struct {
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
	MaxAttempts  int           `yaml:"maxAttempts"`
}

// Delay returns the wait before the given (1-based) poll attempt.
func (p PollPolicy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Config tunes the pipeline. Zero values fall back to DefaultConfig.
type Config struct {
	ChunkSize            int
	MaxConcurrentExtract int
	Retry                map[models.Stage]RetryPolicy
	Poll                 PollPolicy
	StageTimeout         map[models.Stage]time.Duration
	LockTTL              map[models.Stage]time.Duration
	TTLs                 cache.TTLConfig
	Resolver             resolver.Config
}

// DefaultConfig returns the production defaults. Lock TTLs sit slightly
// above each stage's worst-case duration so a crashed holder's lock lapses
// shortly after its work would have.
func DefaultConfig() Config {
	retry := RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Second, Multiplier: 2, MaxDelay: 5 * time.Minute}
	return Config{
		ChunkSize:            1200,
		MaxConcurrentExtract: 4,
		Retry: map[models.Stage]RetryPolicy{
			models.StageOCR:     retry,
			models.StageChunk:   retry,
			models.StageExtract: retry,
			models.StageResolve: retry,
			models.StageRelate:  retry,
		},
		Poll: PollPolicy{
			InitialDelay: 5 * time.Second,
			MaxDelay:     60 * time.Second,
			MaxAttempts:  30,
		},
		StageTimeout: map[models.Stage]time.Duration{
			models.StageOCR:     2 * time.Minute,
			models.StageChunk:   2 * time.Minute,
			models.StageExtract: 10 * time.Minute,
			models.StageResolve: 5 * time.Minute,
			models.StageRelate:  2 * time.Minute,
		},
		LockTTL: map[models.Stage]time.Duration{
			models.StageOCR:     3 * time.Minute,
			models.StageChunk:   3 * time.Minute,
			models.StageExtract: 12 * time.Minute,
			models.StageResolve: 6 * time.Minute,
			models.StageRelate:  3 * time.Minute,
		},
		TTLs:     cache.DefaultTTLs(),
		Resolver: resolver.DefaultConfig(),
	}
}

func (c Config) retry(stage models.Stage) RetryPolicy {
	if p, ok := c.Retry[stage]; ok && p.MaxAttempts > 0 {
		return p
	}
	return DefaultConfig().Retry[stage]
}

func (c Config) stageTimeout(stage models.Stage) time.Duration {
	if d, ok := c.StageTimeout[stage]; ok && d > 0 {
		return d
	}
	return DefaultConfig().StageTimeout[stage]
}

func (c Config) lockTTL(stage models.Stage) time.Duration {
	if d, ok := c.LockTTL[stage]; ok && d > 0 {
		return d
	}
	return DefaultConfig().LockTTL[stage]
}
