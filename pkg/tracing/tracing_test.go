package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupInMemory 使用内存Exporter替换全局Provider，测试结束后恢复
func setupInMemory(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestStartSpan_ParentChild(t *testing.T) {
	exporter := setupInMemory(t)

	ctx, root := StartSpan(context.Background(), "aftersales.timeout", "ProcessTimeouts")
	_, child := StartSpan(ctx, "aftersales.timeout", "processCase")
	child.SetAttributes(attribute.Int64("case_id", 7))
	child.End()
	root.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	// 子Span先结束，先被导出
	assert.Equal(t, "processCase", spans[0].Name)
	assert.Equal(t, "ProcessTimeouts", spans[1].Name)
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestRecordError(t *testing.T) {
	exporter := setupInMemory(t)

	_, span := StartSpan(context.Background(), "aftersales.oms", "SyncFromOms")
	RecordError(span, nil)
	RecordError(span, errors.New("状态映射失败"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "状态映射失败", spans[0].Status.Description)
	assert.Len(t, spans[0].Events, 1)
}

func TestExtractIDs(t *testing.T) {
	setupInMemory(t)

	assert.Empty(t, ExtractTraceID(context.Background()))
	assert.Empty(t, ExtractSpanID(context.Background()))

	ctx, span := StartSpan(context.Background(), "aftersales", "op")
	defer span.End()

	assert.Len(t, ExtractTraceID(ctx), 32)
	assert.Len(t, ExtractSpanID(ctx), 16)
}
