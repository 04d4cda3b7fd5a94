package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessage(t *testing.T) {
	assert.True(t, ValidateMessage("hello"))
	assert.False(t, ValidateMessage(""))
	assert.False(t, ValidateMessage("   \n"))
	assert.True(t, ValidateMessage(strings.Repeat("好", MaxMessageLength)))
	assert.False(t, ValidateMessage(strings.Repeat("a", MaxMessageLength+1)))
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 3, 1, 15, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	assert.Equal(t, "2024-03-01 10:00:00", FormatTime(ts))
}
