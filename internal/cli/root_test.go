package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "vigil", root.Use)

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"run", "validate", "test", "trace"})
}

func TestRootCommand_Flags(t *testing.T) {
	tests := []struct {
		path     []string
		flag     string
		defValue string
	}{
		{nil, "verbose", "false"},
		{nil, "format", "text"},
		{[]string{"run"}, "db", ""},
		{[]string{"run"}, "metrics", "false"},
		{[]string{"test"}, "update", "false"},
		{[]string{"test"}, "filter", ""},
		{[]string{"test"}, "golden-dir", ""},
		{[]string{"trace"}, "db", ""},
		{[]string{"trace"}, "session", ""},
		{[]string{"trace"}, "action", ""},
	}

	root := NewRootCommand()
	for _, tt := range tests {
		t.Run(strings.Join(append(tt.path, tt.flag), " "), func(t *testing.T) {
			cmd, _, err := root.Find(tt.path)
			require.NoError(t, err)

			f := cmd.Flags().Lookup(tt.flag)
			if f == nil {
				f = cmd.PersistentFlags().Lookup(tt.flag)
			}
			require.NotNil(t, f, "missing --%s", tt.flag)
			assert.Equal(t, tt.defValue, f.DefValue)
		})
	}

	assert.Equal(t, "v", root.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestFormatValidation(t *testing.T) {
	for _, format := range []string{"xml", "", "TEXT"} {
		t.Run(format, func(t *testing.T) {
			_, _, err := execute(t, "--format", format, "validate", "x.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid format")
		})
	}

	_, _, err := execute(t, "--format", "json", "validate", scenarioPath("observe_until.yaml"))
	require.NoError(t, err)
}

func TestNewLogger_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	quiet := newLogger(buf, false)
	quiet.Info("hidden")
	quiet.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	newLogger(buf, true).Debug("debugging", "seq", 3)
	assert.Contains(t, buf.String(), "debugging")
	assert.Contains(t, buf.String(), "seq=3")
}
