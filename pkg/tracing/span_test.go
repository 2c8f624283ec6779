package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansJoinParentTrace(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	_, child := StartChildSpan(ctx, "rank")
	child.SetAttr("terms", 2)
	child.End()
	root.End()

	assert.Equal(t, "req-1", child.TraceID)
	require.Len(t, root.Children, 1)
	assert.Same(t, child, root.Children[0])
	assert.Same(t, root, SpanFromContext(ctx))
}

func TestChildWithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, span.TraceID)
	assert.Same(t, span, SpanFromContext(ctx))
}

func TestLogWritesTreeParentFirst(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := StartSpan(context.Background(), "search", "req-1")
	_, child := StartChildSpan(ctx, "load_documents")
	child.End()
	root.End()
	root.Log(log)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "span=search")
	assert.Contains(t, lines[1], "span=load_documents")
	assert.Contains(t, lines[1], "depth=1")
}
