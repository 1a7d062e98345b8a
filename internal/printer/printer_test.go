package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/deepguard/internal/core/prediction"
)

func TestFatalError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
		not  []string
	}{
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: []string{"╭ Error", "boom"},
			not:  []string{"deepguard status"},
		},
		{
			name: "connectivity error gets a hint",
			err: fmt.Errorf("check: %w", &prediction.ConnectivityError{
				Address: "http://localhost:5001",
				Err:     errors.New("refused"),
			}),
			want: []string{"Unable to connect to API", "deepguard status"},
		},
		{
			name: "validation errors are listed per field",
			err: fmt.Errorf("load config: %w", criterio.FieldErrors{
				{Field: "api.base_url", Err: errors.New("must be an http(s) URL")},
			}),
			want: []string{"╭ Validation Error", "load config", "api.base_url:", "must be an http(s) URL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(&buf).FatalError(tt.err)

			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, n := range tt.not {
				assert.NotContains(t, buf.String(), n)
			}
		})
	}
}

func TestFatalError_Nil(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).FatalError(nil)
	assert.Empty(t, buf.String())
}

func TestCtx(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	ctx := NewContext(context.Background(), p)
	assert.Same(t, p, Ctx(ctx))
	assert.NotNil(t, Ctx(context.Background()))
}

func TestItems(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.CheckItem("Reachable", "http://localhost:5001")
	p.FailItem("Model loaded", "")

	assert.Contains(t, buf.String(), Check+" Reachable: http://localhost:5001")
	assert.Contains(t, buf.String(), Cross+" Model loaded\n")
}
