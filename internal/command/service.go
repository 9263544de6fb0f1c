// Package command exposes the ground command surface of the authentication
// engine over gRPC. Messages are protobuf well-known types, so clients need
// no generated stubs.
package command

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/stellar-auth/auth"
	"github.com/signalsfoundry/stellar-auth/internal/logging"
	"github.com/signalsfoundry/stellar-auth/internal/params"
	"github.com/signalsfoundry/stellar-auth/internal/sensors"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "stellarauth.v1.AuthCommandService"

// AuthCommandServer is the server API for the command service.
type AuthCommandServer interface {
	LoadTransitSchedule(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	AuthStart(context.Context, *wrapperspb.UInt32Value) (*emptypb.Empty, error)
	AuthReset(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	PushAttitude(context.Context, *wrapperspb.FloatValue) (*emptypb.Empty, error)
	PushLight(context.Context, *wrapperspb.FloatValue) (*emptypb.Empty, error)
}

// Service implements AuthCommandServer against an Engine. Engine access goes
// through the Executor; sensor pushes go straight to the latches.
type Service struct {
	engine *auth.Engine
	exec   Executor
	inputs sensors.Inputs
	store  params.Store
	log    logging.Logger
}

// NewService wires a Service. store may be nil, in which case accepted
// windows are not persisted.
func NewService(engine *auth.Engine, exec Executor, inputs sensors.Inputs, store params.Store, log logging.Logger) *Service {
	if exec == nil {
		exec = Inline{}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Service{engine: engine, exec: exec, inputs: inputs, store: store, log: log}
}

// Register attaches the service to a gRPC server.
func (s *Service) Register(gs grpc.ServiceRegistrar) {
	gs.RegisterService(&ServiceDesc, s)
}

func (s *Service) LoadTransitSchedule(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	w, err := WindowFromStruct(in)
	if err != nil {
		return nil, ToStatusError(err)
	}

	var applied auth.MissionWindow
	err = s.exec.Do(ctx, func(ctx context.Context) error {
		if err := s.engine.UpdateWindow(ctx, w); err != nil {
			return err
		}
		applied, _ = s.engine.Window()
		return nil
	})
	if err != nil {
		return nil, ToStatusError(err)
	}

	if s.store != nil {
		// The engine already runs with the new window; a failed save only
		// loses it across a restart.
		if err := s.store.Save(ctx, applied); err != nil {
			s.log.Error(ctx, "persist mission window failed", logging.Err(err))
		}
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) AuthStart(ctx context.Context, in *wrapperspb.UInt32Value) (*emptypb.Empty, error) {
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		return s.engine.Bypass(ctx, in.GetValue())
	})
	if err != nil {
		s.log.Warn(ctx, "bypass refused", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) AuthReset(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		s.engine.Reset(ctx)
		return nil
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	var st auth.Status
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		st = s.engine.Status(ctx)
		return nil
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	out := StatusToStruct(st)
	if s.inputs.Yaw != nil {
		out.Fields["yaw"] = structpb.NewNumberValue(float64(s.inputs.Yaw.Load()))
	}
	if s.inputs.Light != nil {
		out.Fields["light"] = structpb.NewNumberValue(float64(s.inputs.Light.Load()))
	}
	return out, nil
}

func (s *Service) PushAttitude(ctx context.Context, in *wrapperspb.FloatValue) (*emptypb.Empty, error) {
	if s.inputs.Yaw == nil {
		return nil, ToStatusError(errNoSensor("attitude"))
	}
	s.inputs.Yaw.Set(in.GetValue())
	return &emptypb.Empty{}, nil
}

func (s *Service) PushLight(ctx context.Context, in *wrapperspb.FloatValue) (*emptypb.Empty, error) {
	if s.inputs.Light == nil {
		return nil, ToStatusError(errNoSensor("light"))
	}
	s.inputs.Light.Set(in.GetValue())
	return &emptypb.Empty{}, nil
}

type errNoSensor string

func (e errNoSensor) Error() string { return string(e) + " sensor not wired" }

// ServiceDesc is the grpc.ServiceDesc for the command service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthCommandServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LoadTransitSchedule", Handler: unaryHandler("LoadTransitSchedule", newStruct, AuthCommandServer.LoadTransitSchedule)},
		{MethodName: "AuthStart", Handler: unaryHandler("AuthStart", newUInt32, AuthCommandServer.AuthStart)},
		{MethodName: "AuthReset", Handler: unaryHandler("AuthReset", newEmpty, AuthCommandServer.AuthReset)},
		{MethodName: "GetStatus", Handler: unaryHandler("GetStatus", newEmpty, AuthCommandServer.GetStatus)},
		{MethodName: "PushAttitude", Handler: unaryHandler("PushAttitude", newFloat, AuthCommandServer.PushAttitude)},
		{MethodName: "PushLight", Handler: unaryHandler("PushLight", newFloat, AuthCommandServer.PushLight)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stellarauth/v1/command.proto",
}

func newStruct() *structpb.Struct { return new(structpb.Struct) }
func newUInt32() *wrapperspb.UInt32Value { return new(wrapperspb.UInt32Value) }
func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }
func newFloat() *wrapperspb.FloatValue { return new(wrapperspb.FloatValue) }

func unaryHandler[Req, Resp any](method string, newReq func() Req, call func(AuthCommandServer, context.Context, Req) (Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthCommandServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AuthCommandServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
