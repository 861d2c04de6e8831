package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/kestrel/internal/config"
)

func TestRootCommand_Version(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, Version, strings.TrimSpace(out.String()))
}

func TestRootCommand_ListsSubcommands(t *testing.T) {
	root := NewRootCommand()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["intent"])
	assert.True(t, names["audit"])
}

func TestConfigFromContext(t *testing.T) {
	_, err := configFromContext(context.Background())
	assert.Error(t, err)

	cfg := config.NewDefaultConfig()
	got, err := configFromContext(withConfig(context.Background(), cfg))
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}

func TestParseContextData(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		data, err := parseContextData("")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("valid JSON object", func(t *testing.T) {
		data, err := parseContextData(`{"location": "home", "battery_level": 80}`)
		require.NoError(t, err)
		assert.Equal(t, "home", data["location"])
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := parseContextData("{not json")
		assert.ErrorContains(t, err, "invalid --context JSON")
	})
}
