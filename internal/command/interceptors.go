package command

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/stellar-auth/internal/logging"
	"github.com/signalsfoundry/stellar-auth/internal/observability"
)

const (
	tracerName           = "github.com/signalsfoundry/stellar-auth/internal/command"
	commandIDMetadataKey = "x-command-id"
)

// CommandIDUnaryServerInterceptor ensures a command_id is present on the
// context, taking it from inbound metadata when the client supplied one, and
// logs the outcome of every command.
func CommandIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(commandIDMetadataKey); len(vals) > 0 && vals[0] != "" {
				ctx = logging.ContextWithCommandID(ctx, vals[0])
			}
		}
		ctx, _ = logging.EnsureCommandID(ctx)

		resp, err := handler(ctx, req)

		log := base.With(logging.String("method", observability.MethodName(info.FullMethod)))
		if err != nil {
			log.Warn(ctx, "command failed", logging.String("code", status.Code(err).String()), logging.Err(err))
		} else {
			log.Debug(ctx, "command handled")
		}
		return resp, err
	}
}

// TracingUnaryServerInterceptor names the server span after the command and
// tags it with the command_id. It starts a span when no stats handler did.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		name := "command/" + observability.MethodName(info.FullMethod)
		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(name)
		}

		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", ServiceName),
			attribute.String("rpc.method", observability.MethodName(info.FullMethod)),
		}
		if id := logging.CommandIDFromContext(ctx); id != "" {
			attrs = append(attrs, attribute.String("command_id", id))
		}
		span.SetAttributes(attrs...)

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		if created {
			span.End()
		}
		return resp, err
	}
}

// OutgoingCommandID attaches id to the outgoing metadata so the server logs
// and traces the command under it.
func OutgoingCommandID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, commandIDMetadataKey, id)
}
