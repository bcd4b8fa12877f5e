package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/forest/xerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartSpan(context.Background(), "forest.fit")
	Annotate(ctx, "trees", 10, "mode", "parallel", "other", []int{1}, "dangling")
	SetError(ctx, errors.New("learner 3 failed"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "forest.fit", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Len(t, ended[0].Attributes(), 3)
}

func TestSetErrorRecordsCode(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartSpan(context.Background(), "modelio.Load")
	SetError(ctx, xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "decode"))
	SetError(ctx, nil)
	span.End()

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range rec.Ended()[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(xerrors.ErrCorruptModel.Code), attrs["error.code"].AsInt64())
	assert.Equal(t, "DataLoss", attrs["error.type"].AsString())
}

func TestAnnotateWithoutSpan(t *testing.T) {
	assert.NotPanics(t, func() { Annotate(context.Background(), "k", 1) })
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracer(context.Background(), Config{ServiceName: "forest-test", SampleRatio: 1})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
