package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.Bytes()
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	assert.Contains(t, string(out), "supportctl dev")
	assert.Contains(t, string(out), "commit:")

	out = execute(t, "version", "--short")
	assert.Equal(t, "dev\n", string(out))
}

func TestScoreCommand(t *testing.T) {
	out := execute(t, "score", "--inactivity", "90", "--payment-retries", "2", "--first-time", "--event-type", "wedding")

	var res struct {
		Score          int  `json:"friction_score"`
		ShouldShowHelp bool `json:"should_show_help"`
		Level          struct {
			Level string `json:"level"`
		} `json:"level"`
	}
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, 95, res.Score)
	assert.True(t, res.ShouldShowHelp)
	assert.Equal(t, "CRITICAL", res.Level.Level)
}

func TestRouteCommand(t *testing.T) {
	out := execute(t, "route", "--order-value", "30000")

	var decision struct {
		AllowedChannels []string `json:"allowed_channels"`
		Priority        string   `json:"priority"`
	}
	require.NoError(t, json.Unmarshal(out, &decision))
	assert.Contains(t, decision.AllowedChannels, "CALL")
	assert.Equal(t, "HIGH", decision.Priority)
}
