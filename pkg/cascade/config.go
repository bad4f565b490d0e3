package cascade

import (
	"fmt"
)

// DefaultBatchSize is the deferred partition size used when neither the
// relationship nor the Config sets one.
const DefaultBatchSize = 1000

// Config is the engine's read-only configuration.
type Config struct {
	// DeleteQueue receives deferred delete units.
	DeleteQueue string `yaml:"delete_queue"`
	// RestoreQueue receives deferred restore units.
	RestoreQueue string `yaml:"restore_queue"`
	// ActorType is the Go type name of the principal tombstoned_by_id refers to.
	ActorType string `yaml:"actor_type"`
	// BatchSize is the default deferred partition size.
	BatchSize int `yaml:"batch_size"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		DeleteQueue:  "default",
		RestoreQueue: "default",
		ActorType:    "User",
		BatchSize:    DefaultBatchSize,
	}
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	if c.DeleteQueue == "" {
		return fmt.Errorf("cascade: delete queue name is empty")
	}
	if c.RestoreQueue == "" {
		return fmt.Errorf("cascade: restore queue name is empty")
	}
	if c.ActorType == "" {
		return fmt.Errorf("cascade: actor type is empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("cascade: batch size must be positive, got %d", c.BatchSize)
	}
	return nil
}
