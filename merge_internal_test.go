// SPDX-License-Identifier: Apache-2.0

package jsonmerge

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLogger records how many debug events it receives.
type countingLogger struct {
	NopLogger
	debug int
}

func (c *countingLogger) Debug(_ string, _ ...any) { c.debug++ }

func TestHasLogger(t *testing.T) {
	tests := []struct {
		name   string
		logger Logger
		want   bool
	}{
		{"default", nil, false},
		{"nop value", NopLogger{}, false},
		{"nop pointer", &NopLogger{}, false},
		{"slog", NewSlogAdapter(slog.Default()), true},
		{"custom", &countingLogger{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMerger(Options{Logger: tt.logger})
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.hasLogger())
		})
	}
}

func TestMergeResultIndependentOfLogger(t *testing.T) {
	values := []Value{
		Array(NewObject(Member{Key: "id", Value: Number(1)})),
		Array(NewObject(Member{Key: "a", Value: Number(2)}), String("x")),
	}

	logger := &countingLogger{}
	m, err := NewMerger(Options{Logger: logger})
	require.NoError(t, err)
	loud := m.Merge(values...)
	assert.Equal(t, 1, logger.debug)

	quiet, err := Merge(Options{}, values...)
	require.NoError(t, err)
	assert.Equal(t, loud.String(), quiet.String())
}
