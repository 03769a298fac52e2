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

func TestStart_BuildsTree(t *testing.T) {
	ctx, root := Start(context.Background(), "pipeline.run", "run-1")
	_, crawl := Start(ctx, "crawl", "ignored")
	crawl.SetAttr("roots", 2)
	crawl.End()
	root.End()

	assert.Equal(t, "run-1", root.TraceID)
	require.NotNil(t, root.Child("crawl"))
	assert.Equal(t, "run-1", root.Child("crawl").TraceID)
	assert.Nil(t, root.Child("drain"))

	end := root.EndTime
	root.End()
	assert.Equal(t, end, root.EndTime)
}

func TestLog_WritesEverySpan(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "pipeline.run", "t")
	_, child := StartChildSpan(ctx, "drain")
	child.End()
	root.End()

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Equal(t, 2, strings.Count(buf.String(), "msg=span"))
	assert.Contains(t, buf.String(), "span=drain")
	assert.Contains(t, buf.String(), "depth=1")
}
