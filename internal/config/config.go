// Package config loads and validates EngineConfig, the merged
// defaults+file+env+flags configuration the job engine runs with.
package config

import (
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
)

// LanguageConfig configures CodeParse's handling of one language bucket.
type LanguageConfig struct {
	Enabled         bool
	MaxBytes        int64
	IncludeTests    bool
	IncludeComments bool
	Sandbox         bool
}

// JobsConfig configures the orchestrator's capacity and timeouts.
type JobsConfig struct {
	MaxConcurrent      int
	DefaultTimeoutMs   int64
	TimeoutMultipliers map[model.JobKind]float64
}

// GraphConfig configures the Neo4j-backed GraphSink.
type GraphConfig struct {
	BatchSize int
	URI       string
	Username  string
	Password  string
}

// ParserConfig configures CodeParse's per-language behavior.
type ParserConfig struct {
	Languages map[string]LanguageConfig
}

// GitConfig configures GitSync.
type GitConfig struct {
	Shallow bool
}

// FilesConfig configures the file filtering shared by GitSync/CodeParse.
type FilesConfig struct {
	MaxBytes     int64
	ExcludeGlobs []string
}

// CleanupConfig configures the Cleanup task.
type CleanupConfig struct {
	DeleteWorkingDir bool
	DeleteTemp       bool
}

// StorageConfig configures where per-codebase working trees live.
type StorageConfig struct {
	Root string
}

// StoreConfig configures the JobRepository backend.
type StoreConfig struct {
	Type             string // "sqlite" | "postgres"
	ConnectionString string
}

// ServerConfig holds the server port, loaded and validated at startup.
// No listener in this module reads it; the metrics server started by
// the root command listens on a fixed port.
type ServerConfig struct {
	Port int
}

// EngineConfig is the fully-merged configuration the engine runs with.
type EngineConfig struct {
	Jobs    JobsConfig
	Graph   GraphConfig
	Parser  ParserConfig
	Git     GitConfig
	Files   FilesConfig
	Cleanup CleanupConfig
	Storage StorageConfig
	Store   StoreConfig
	Server  ServerConfig
}

// defaultLanguages mirrors spec.md §4.4.2's language→bucket table.
func defaultLanguages() map[string]LanguageConfig {
	langs := map[string]LanguageConfig{
		"go":     {Enabled: true, MaxBytes: 2 << 20, IncludeTests: false, IncludeComments: false, Sandbox: false},
		"ts":     {Enabled: true, MaxBytes: 2 << 20, IncludeTests: false, IncludeComments: false, Sandbox: true},
		"java":   {Enabled: true, MaxBytes: 2 << 20, IncludeTests: false, IncludeComments: false, Sandbox: true},
		"python": {Enabled: true, MaxBytes: 2 << 20, IncludeTests: false, IncludeComments: false, Sandbox: true},
		"rust":   {Enabled: true, MaxBytes: 2 << 20, IncludeTests: false, IncludeComments: false, Sandbox: true},
		"cpp":    {Enabled: true, MaxBytes: 2 << 20, IncludeTests: false, IncludeComments: false, Sandbox: true},
	}
	return langs
}

// defaultTimeoutMultipliers mirrors spec.md §4.2's timeout mapping.
func defaultTimeoutMultipliers() map[model.JobKind]float64 {
	return map[model.JobKind]float64{
		model.KindCodebaseFull:     3.0,
		model.KindCodebaseIncr:     0.5,
		model.KindDocsFull:        0.3,
		model.KindDocsIncr:        0.3,
		model.KindAPIAnalysis:     2.0,
		model.KindUserflowAnalysis: 2.0,
	}
}

// Defaults returns an EngineConfig populated with the same baseline
// values Load seeds into viper before file/env/flag overrides apply.
func Defaults() *EngineConfig {
	return &EngineConfig{
		Jobs: JobsConfig{
			MaxConcurrent:      4,
			DefaultTimeoutMs:   10 * 60 * 1000,
			TimeoutMultipliers: defaultTimeoutMultipliers(),
		},
		Graph: GraphConfig{
			BatchSize: 500,
			URI:       "bolt://localhost:7687",
			Username:  "neo4j",
		},
		Parser: ParserConfig{Languages: defaultLanguages()},
		Git:    GitConfig{Shallow: true},
		Files: FilesConfig{
			MaxBytes:     1 << 20,
			ExcludeGlobs: []string{"*.min.js", "vendor/*", "node_modules/*", ".git/*"},
		},
		Cleanup: CleanupConfig{DeleteWorkingDir: true, DeleteTemp: true},
		Storage: StorageConfig{Root: "./data/codebases"},
		Store:   StoreConfig{Type: "sqlite", ConnectionString: ".codegraph-indexer.db"},
		Server:  ServerConfig{Port: 8080},
	}
}
