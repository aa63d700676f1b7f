package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCtx_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	assert.Same(t, &globalLogger, Ctx(context.Background()))
	assert.Same(t, &globalLogger, Ctx(nil))
}

func TestWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := zerolog.New(&buf).With().Str("op_id", "abc").Logger()
	ctx := WithLogger(context.Background(), &l)

	Ctx(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"op_id":"abc"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}
