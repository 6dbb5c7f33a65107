package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Load composes EngineConfig from defaults, an optional YAML file,
// INDEXER_-prefixed environment variables, and any flags bound via
// BindFlags, in that precedence order (later overrides earlier).
func Load(cfgFile string) (*EngineConfig, error) {
	if err := godotenv.Load(); err != nil {
		// Absence of a .env file is normal outside local dev; proceed silently.
		_ = err
	}

	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	setDefaults(v, Defaults())

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}

	cfg := Defaults()
	cfg.Jobs.MaxConcurrent = v.GetInt("jobs.maxconcurrent")
	cfg.Jobs.DefaultTimeoutMs = v.GetInt64("jobs.defaulttimeoutms")
	cfg.Graph.BatchSize = v.GetInt("graph.batchsize")
	cfg.Graph.URI = v.GetString("graph.uri")
	cfg.Graph.Username = v.GetString("graph.username")
	cfg.Graph.Password = v.GetString("graph.password")
	cfg.Git.Shallow = v.GetBool("git.shallow")
	cfg.Files.MaxBytes = v.GetInt64("files.maxbytes")
	if globs := v.GetStringSlice("files.excludeglobs"); len(globs) > 0 {
		cfg.Files.ExcludeGlobs = globs
	}
	cfg.Cleanup.DeleteWorkingDir = v.GetBool("cleanup.deleteworkingdir")
	cfg.Cleanup.DeleteTemp = v.GetBool("cleanup.deletetemp")
	cfg.Storage.Root = v.GetString("storage.root")
	cfg.Store.Type = v.GetString("store.type")
	cfg.Store.ConnectionString = v.GetString("store.connectionstring")
	cfg.Server.Port = v.GetInt("server.port")

	return cfg, nil
}

// BindFlags copies the max-concurrent, store-type, store-dsn and port
// flags from fs into cfg when they were set explicitly, giving CLI flags
// the highest precedence. Call after Load.
func BindFlags(fs *pflag.FlagSet, cfg *EngineConfig) {
	if p, err := fs.GetInt("max-concurrent"); err == nil && fs.Changed("max-concurrent") {
		cfg.Jobs.MaxConcurrent = p
	}
	if p, err := fs.GetString("store-type"); err == nil && fs.Changed("store-type") {
		cfg.Store.Type = p
	}
	if p, err := fs.GetString("store-dsn"); err == nil && fs.Changed("store-dsn") {
		cfg.Store.ConnectionString = p
	}
	if p, err := fs.GetInt("port"); err == nil && fs.Changed("port") {
		cfg.Server.Port = p
	}
}

func setDefaults(v *viper.Viper, d *EngineConfig) {
	v.SetDefault("jobs.maxconcurrent", d.Jobs.MaxConcurrent)
	v.SetDefault("jobs.defaulttimeoutms", d.Jobs.DefaultTimeoutMs)
	v.SetDefault("graph.batchsize", d.Graph.BatchSize)
	v.SetDefault("graph.uri", d.Graph.URI)
	v.SetDefault("graph.username", d.Graph.Username)
	v.SetDefault("graph.password", d.Graph.Password)
	v.SetDefault("git.shallow", d.Git.Shallow)
	v.SetDefault("files.maxbytes", d.Files.MaxBytes)
	v.SetDefault("files.excludeglobs", d.Files.ExcludeGlobs)
	v.SetDefault("cleanup.deleteworkingdir", d.Cleanup.DeleteWorkingDir)
	v.SetDefault("cleanup.deletetemp", d.Cleanup.DeleteTemp)
	v.SetDefault("storage.root", d.Storage.Root)
	v.SetDefault("store.type", d.Store.Type)
	v.SetDefault("store.connectionstring", d.Store.ConnectionString)
	v.SetDefault("server.port", d.Server.Port)
}
