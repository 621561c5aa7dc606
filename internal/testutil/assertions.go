package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertItemAggregated checks that the run logged the aggregate of a child of
// the root.
func AssertItemAggregated(t *testing.T, result *HarnessResult, id string, aggregate int64) {
	t.Helper()

	expected := fmt.Sprintf("item %s has %d", id, aggregate)
	require.True(t,
		strings.Contains(result.LogOutput, expected),
		"expected log line %q was not found in logs", expected,
	)
}

// AssertLogged checks that the log output contains every fragment.
func AssertLogged(t *testing.T, result *HarnessResult, fragments ...string) {
	t.Helper()

	for _, f := range fragments {
		require.Contains(t, result.LogOutput, f)
	}
}
