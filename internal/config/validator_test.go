package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultsPass(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidate_RejectsNonPositiveMaxConcurrent(t *testing.T) {
	cfg := Defaults()
	cfg.Jobs.MaxConcurrent = 0
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "maxConcurrent")
}

func TestValidate_RejectsEmptyStorageRoot(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Root = ""
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "storage.root")
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 70000
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "port")
}

func TestValidate_RejectsUnknownStoreType(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Type = "mongodb"
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "store.type")
}

func TestValidate_AccumulatesMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Jobs.MaxConcurrent = -1
	cfg.Graph.BatchSize = 0
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "maxConcurrent")
	require.Contains(t, err.Error(), "batchSize")
}
