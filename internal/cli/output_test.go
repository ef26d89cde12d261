package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUseTableHonoursFormatFlag(t *testing.T) {
	old := formatFlag
	t.Cleanup(func() { formatFlag = old })

	formatFlag = "json"
	assert.False(t, useTable())
	formatFlag = "TABLE"
	assert.True(t, useTable())
	formatFlag = "text"
	assert.True(t, useTable())
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"PROMPT", "ID", "STATUS"}, [][]string{
		{"1", "spookyland_lmid-1_q1_01ARZ3NDEKTSV4RRFFQ69G5FAV", "uploaded"},
		{"2", "spookyland_lmid-1_q2_01ARZ3NDEKTSV4RRFFQ69G5FAW"},
	}, 1)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Contains(t, out, "PROMPT")
	assert.Contains(t, out, "uploaded")
	assert.Contains(t, out, "q2_01ARZ3NDEKTSV4RRFFQ69G5FAW")
}

func TestInvalidStatusErrorListsChoices(t *testing.T) {
	err := &invalidStatusError{value: "done"}
	assert.Contains(t, err.Error(), `"done"`)
	assert.Contains(t, err.Error(), "pending")
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"record", "list", "get", "resolve", "rm", "upload", "reconcile", "plan", "stats", "scopes", "export", "import", "config"}
	have := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, have[name], "missing command %s", name)
	}
}
