package utils

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredWriter_Flush(t *testing.T) {
	d := &DeferredWriter{}
	log := zerolog.New(d)

	log.Info().Msg("first")
	log.Warn().Msg("second")
	assert.Equal(t, 2, d.Len())

	var out bytes.Buffer
	require.NoError(t, d.Flush(&out))

	assert.Contains(t, out.String(), `"message":"first"`)
	assert.Contains(t, out.String(), `"message":"second"`)
	assert.Less(t, bytes.Index(out.Bytes(), []byte("first")), bytes.Index(out.Bytes(), []byte("second")))
	assert.Equal(t, 0, d.Len(), "flush empties the buffer")
}

func TestDeferredWriter_ConsoleWriter(t *testing.T) {
	d := &DeferredWriter{}
	log := zerolog.New(d)
	log.Error().Str("file", "a.png").Msg("analysis failed")

	var out bytes.Buffer
	require.NoError(t, d.Flush(zerolog.ConsoleWriter{Out: &out, NoColor: true}))

	assert.Contains(t, out.String(), "analysis failed")
	assert.Contains(t, out.String(), "file=a.png")
}
