package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeKeyClause_SortsKeysDeterministically(t *testing.T) {
	clause := mergeKeyClause("k", map[string]any{"b": 1, "a": 2})
	require.Equal(t, "a: $k_a, b: $k_b", clause)
}

func TestMergeKeyParams_PrefixesAndSanitizes(t *testing.T) {
	params := mergeKeyParams("from", map[string]any{"codebase.id": "c1"})
	require.Equal(t, "c1", params["from_codebase_id"])
}

func TestResultFromCreatedCount(t *testing.T) {
	require.Equal(t, ResultCreated, resultFromCreatedCount(1))
	require.Equal(t, ResultUpdated, resultFromCreatedCount(0))
}
