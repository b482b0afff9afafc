// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/research-assistant/pkg/types"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			log, level, err := New(types.LoggingConfig{Level: tc.level})
			require.NoError(t, err)
			assert.Equal(t, tc.want, level.Level())
			assert.True(t, log.Core().Enabled(tc.want))
		})
	}
}

func TestNew_AtomicLevelChanges(t *testing.T) {
	log, level, err := New(types.LoggingConfig{Development: true})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel), "development config still honours the level")
	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(types.LoggingConfig{Level: "verbose"})
	assert.ErrorContains(t, err, "invalid log level")
}
