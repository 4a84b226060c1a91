package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_Valid(t *testing.T) {
	out, _, err := execute(t, "validate",
		scenarioPath("run_while_horse.yaml"),
		scenarioPath("reactor_parity.yaml"),
	)
	require.NoError(t, err)
	assert.Contains(t, out, "(run_while_horse, run_while)")
	assert.Contains(t, out, "(reactor_even_values, observe_and_run)")
}

func TestValidateCommand_MissingArgs(t *testing.T) {
	_, _, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestValidateCommand_Invalid(t *testing.T) {
	dir := t.TempDir()
	badExpr := filepath.Join(dir, "bad_expr.yaml")
	require.NoError(t, os.WriteFile(badExpr, []byte(`
name: bad_expr
description: "Unparseable predicate"
watch: {kind: observe_until, predicate: "state.val >"}
steps: [{action: noop}]
`), 0644))
	reserved := filepath.Join(dir, "reserved.yaml")
	require.NoError(t, os.WriteFile(reserved, []byte(`
name: reserved
description: "Reserved tag"
watch:
  kind: run_while
  invariants: [{tag: "@@Saga", holds: "true"}]
steps: [{action: noop}]
`), 0644))
	typo := filepath.Join(dir, "typo.yaml")
	require.NoError(t, os.WriteFile(typo, []byte("name: x\ndescriptoin: y\n"), 0644))

	out, _, err := execute(t, "validate", "--format", "json",
		scenarioPath("observe_until.yaml"), badExpr, reserved, typo)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCompile, resp.Error.Code)

	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Scenarios, 4)
	assert.Empty(t, resp.Data.Scenarios[0].Error)
	assert.Contains(t, resp.Data.Scenarios[1].Error, "watch.predicate")
	assert.Contains(t, resp.Data.Scenarios[2].Error, "RESERVED_TAG")
	assert.Contains(t, resp.Data.Scenarios[3].Error, "failed to parse YAML")
}

func TestValidateCommand_TextFailure(t *testing.T) {
	out, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "failed to read scenario file")
}
