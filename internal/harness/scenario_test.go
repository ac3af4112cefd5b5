package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: smallest valid scenario
feed:
  items:
    - id: "1"
      text: hi
rounds:
  - composition: hash
assertions:
  - type: item_count
    count: 1
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, 0, s.Steps)
	require.Len(t, s.Feed.Items, 1)
	assert.Equal(t, "hi", s.Feed.Items[0].Text)
	require.Len(t, s.Rounds, 1)
	assert.Equal(t, AssertItemCount, s.Assertions[0].Type)
}

func TestParseScenario_VoiceConfigKeepsTypes(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "duplicate_content.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "media", s.Voice["bucket"])
	assert.Equal(t, 2, s.Voice["concurrency"])
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		edit func(string) string
		want string
	}{
		{"unknown field", func(s string) string { return s + "assertion: []\n" }, "failed to parse YAML"},
		{"missing name", func(s string) string { return strings.Replace(s, "name: minimal", "", 1) }, "name is required"},
		{"missing description", func(s string) string { return strings.Replace(s, "description: smallest valid scenario", "", 1) }, "description is required"},
		{"bad composition", func(s string) string { return strings.Replace(s, "composition: hash", "composition: hash(", 1) }, "rounds[0]"},
		{"unknown assertion", func(s string) string { return strings.Replace(s, "type: item_count", "type: vibes", 1) }, "unknown assertion type"},
		{"round out of range", func(s string) string { return strings.Replace(s, "count: 1", "count: 1\n    round: 4", 1) }, "round 4 out of range"},
		{"duplicate item", func(s string) string {
			return strings.Replace(s, "      text: hi\n", "      text: hi\n    - id: \"1\"\n", 1)
		}, "duplicate id"},
		{"bad force status", func(s string) string {
			return strings.Replace(s, "composition: hash", "composition: hash\n    force_status: exploded", 1)
		}, "unknown force_status"},
		{"unknown item", func(s string) string {
			return strings.Replace(s, "type: item_count", "type: attachment_count\n    item: nope", 1)
		}, "unknown item"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.edit(minimalScenario)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenario_AllFixturesParse(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		_, err = ParseScenario(data)
		assert.NoError(t, err, p)
	}
}
