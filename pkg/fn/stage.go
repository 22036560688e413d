package fn

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// Stage transforms In to Out within a context, reporting failure through Result.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// TracedStage wraps a stage so each invocation runs inside its own OTel span.
// A failed Result marks the span as errored before it ends.
func TracedStage[In, Out any](name string, stage Stage[In, Out]) Stage[In, Out] {
	tracer := otel.Tracer("traffic/fn")
	return func(ctx context.Context, in In) Result[Out] {
		ctx, span := tracer.Start(ctx, name)
		defer span.End()
		res := stage(ctx, in)
		if res.IsErr() {
			_, err := res.Unwrap()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return res
	}
}
