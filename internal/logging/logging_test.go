package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, opts := range []Options{{}, {Level: "debug"}, {Level: "warn", Format: "json"}, {Format: "console"}} {
		logger, err := New(opts)
		require.NoError(t, err, "%+v", opts)
		require.NotNil(t, logger)
	}
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.ErrorContains(t, err, "invalid log level")

	_, err = New(Options{Format: "xml"})
	assert.ErrorContains(t, err, "unknown log format")
}
