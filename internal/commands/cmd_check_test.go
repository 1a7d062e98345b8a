package commands

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/deepguard/internal/core/config"
	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/deepguard"
	"github.com/hay-kot/deepguard/internal/printer"
	"github.com/hay-kot/deepguard/internal/upload"
)

// pngHeader is enough for MIME sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestToCheckResult(t *testing.T) {
	entry := history.NewEntry(prediction.Result{}, "a.jpg", "", history.SourcePopup, time.Now())

	tests := []struct {
		name string
		out  deepguard.Outcome
		err  error
		want CheckResult
	}{
		{
			name: "success with entry",
			out: deepguard.Outcome{
				Result: prediction.Result{Class: prediction.ClassFake, Confidence: 91},
				Entry:  &entry,
			},
			want: CheckResult{Ref: "a.jpg", Status: StatusOK, ID: entry.ID, Class: "Fake", Label: "FAKE", Confidence: 91},
		},
		{
			name: "success without entry",
			out:  deepguard.Outcome{Result: prediction.Result{Class: prediction.ClassReal, Confidence: 70}},
			want: CheckResult{Ref: "a.jpg", Status: StatusOK, Class: "Real", Label: "REAL", Confidence: 70},
		},
		{
			name: "failure",
			err:  errors.New("Analysis failed"),
			want: CheckResult{Ref: "a.jpg", Status: StatusFailed, Error: "Analysis failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toCheckResult("a.jpg", tt.out, tt.err)
			if tt.err != nil {
				assert.ErrorIs(t, got.err, tt.err)
			}
			got.result = nil
			got.err = nil
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckCmd_OutputTextKeepsErrorType(t *testing.T) {
	cause := &prediction.ConnectivityError{Address: "http://127.0.0.1:5000", Err: errors.New("connection refused")}
	results := []CheckResult{toCheckResult("a.jpg", deepguard.Outcome{}, cause)}

	cmd := &CheckCmd{}
	err := cmd.outputText(context.Background(), io.Discard, results)
	require.Error(t, err)

	var connErr *prediction.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.NotEmpty(t, printer.Hint(err))
}

func TestCountResults(t *testing.T) {
	results := []CheckResult{
		{Status: StatusOK},
		{Status: StatusFailed},
		{Status: StatusOK},
	}

	ok, failed := countResults(results)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)

	require.Error(t, exitOnFailure(results))
	assert.NoError(t, exitOnFailure(results[:1]))
}

func TestCheckCmd_LoadPayloads(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.png"), pngHeader, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fake.jpg"), []byte("plain text"), 0o644))

	cfg := config.DefaultConfig()

	t.Run("file picker accepts any content", func(t *testing.T) {
		cmd := &CheckCmd{flags: &Flags{Config: &cfg}}

		payloads, failed, err := cmd.loadPayloads([]string{dir})
		require.NoError(t, err)
		assert.Len(t, payloads, 2)
		assert.Empty(t, failed)
	})

	t.Run("drop rejects non images", func(t *testing.T) {
		cmd := &CheckCmd{flags: &Flags{Config: &cfg}, drop: true}

		payloads, failed, err := cmd.loadPayloads([]string{dir})
		require.NoError(t, err)
		require.Len(t, payloads, 1)
		assert.Equal(t, "image/png", payloads[0].MIME)
		require.Len(t, failed, 1)
		assert.Equal(t, StatusFailed, failed[0].Status)
		assert.Contains(t, failed[0].Error, upload.ErrNotImage.Error())
	})

	t.Run("missing file fails the whole run", func(t *testing.T) {
		cmd := &CheckCmd{flags: &Flags{Config: &cfg}}

		_, _, err := cmd.loadPayloads([]string{filepath.Join(dir, "missing.png")})
		require.Error(t, err)
	})
}
