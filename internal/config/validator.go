package config

import "fmt"

// Validate rejects non-positive timeouts/concurrency/ports and an empty
// storage root, per SPEC_FULL §4.0. Runs once at construction.
func Validate(cfg *EngineConfig) error {
	var errs []string

	if cfg.Jobs.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Sprintf("jobs.maxConcurrent must be positive, got %d", cfg.Jobs.MaxConcurrent))
	}
	if cfg.Jobs.DefaultTimeoutMs <= 0 {
		errs = append(errs, fmt.Sprintf("jobs.defaultTimeoutMs must be positive, got %d", cfg.Jobs.DefaultTimeoutMs))
	}
	if cfg.Graph.BatchSize <= 0 {
		errs = append(errs, fmt.Sprintf("graph.batchSize must be positive, got %d", cfg.Graph.BatchSize))
	}
	if cfg.Storage.Root == "" {
		errs = append(errs, "storage.root must not be empty")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if cfg.Store.Type != "sqlite" && cfg.Store.Type != "sqlite3" && cfg.Store.Type != "postgres" && cfg.Store.Type != "postgresql" {
		errs = append(errs, fmt.Sprintf("store.type must be sqlite or postgres, got %q", cfg.Store.Type))
	}

	if len(errs) == 0 {
		return nil
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "\n  " + e
	}
	return fmt.Errorf("configuration validation failed:\n  %s", msg)
}
