package command

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/stellar-auth/auth"
	"github.com/signalsfoundry/stellar-auth/internal/events"
	"github.com/signalsfoundry/stellar-auth/internal/logging"
	"github.com/signalsfoundry/stellar-auth/internal/params"
	"github.com/signalsfoundry/stellar-auth/internal/sensors"
	"github.com/signalsfoundry/stellar-auth/tmr"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	client   *Client
	engine   *auth.Engine
	queue    *Queue
	inputs   sensors.Inputs
	store    *params.MemoryStore
	recorder *events.Recorder
	logs     *syncBuffer
}

// newHarness serves the command service on a loopback listener. A background
// goroutine plays the tick loop: it drains the queue every millisecond.
func newHarness(t *testing.T) *harness {
	t.Helper()

	rec := events.NewRecorder()
	eng, err := auth.New(auth.DefaultConfig(), auth.WithSink(rec))
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	h := &harness{
		engine:   eng,
		queue:    NewQueue(),
		inputs:   sensors.NewInputs(),
		store:    params.NewMemoryStore(),
		recorder: rec,
		logs:     &syncBuffer{},
	}
	log := logging.New(logging.Config{Level: "debug", Output: h.logs})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		CommandIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	))
	NewService(eng, h.queue, h.inputs, h.store, log).Register(srv)
	go func() { _ = srv.Serve(lis) }()

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.queue.Drain()
			}
		}
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	h.client = NewClient(conn)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		close(stop)
		<-stopped
		h.queue.Close()
	})
	return h
}

// onLoop runs fn on the tick-loop goroutine.
func (h *harness) onLoop(t *testing.T, fn func(ctx context.Context)) {
	t.Helper()
	err := h.queue.Do(context.Background(), func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("queue.Do: %v", err)
	}
}

func (h *harness) tick(t *testing.T, now int64) auth.Frame {
	t.Helper()
	var f auth.Frame
	h.onLoop(t, func(ctx context.Context) {
		f = h.engine.Tick(ctx, auth.Inputs{Now: now, Yaw: h.inputs.Yaw.Load(), Light: h.inputs.Light.Load()})
	})
	return f
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoadTransitSchedulePersistsWindow(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	want := auth.MissionWindow{Start: 100, End: 120, TargetYaw: 45}
	if err := h.client.LoadTransitSchedule(ctx, want); err != nil {
		t.Fatalf("LoadTransitSchedule: %v", err)
	}
	got, err := h.store.Load(ctx)
	if err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	if got != want {
		t.Fatalf("stored window = %+v, want %+v", got, want)
	}

	st, err := h.client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st["window_configured"] != true || st["window_start"] != float64(100) || st["window_version"] != float64(1) {
		t.Fatalf("status = %v", st)
	}
	if h.recorder.Count(events.KindWindowUpdated) != 1 {
		t.Fatalf("window_updated events = %d, want 1", h.recorder.Count(events.KindWindowUpdated))
	}
}

func TestLoadTransitScheduleRejectsInvalidWindows(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	if err := h.client.LoadTransitSchedule(ctx, auth.MissionWindow{Start: 120, End: 100}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("inverted window code = %v, want InvalidArgument", status.Code(err))
	}

	partial := &structpb.Struct{Fields: map[string]*structpb.Value{
		"window_start": structpb.NewNumberValue(1),
		"target_yaw":   structpb.NewNumberValue(0),
	}}
	err := h.client.cc.Invoke(ctx, "/"+ServiceName+"/LoadTransitSchedule", partial, new(emptypb.Empty))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing window_end code = %v, want InvalidArgument", status.Code(err))
	}

	if _, err := h.store.Load(ctx); !errors.Is(err, params.ErrNotFound) {
		t.Fatalf("store.Load after rejections = %v, want ErrNotFound", err)
	}
	if _, ok := h.engine.Window(); ok {
		t.Fatalf("engine installed a rejected window")
	}
}

func TestAuthStartOverGRPC(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	err := h.client.AuthStart(ctx, 0x12345678)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("wrong key code = %v, want InvalidArgument", status.Code(err))
	}
	if h.recorder.Count(events.KindAuthFailed) != 1 {
		t.Fatalf("auth_failed events = %d, want 1", h.recorder.Count(events.KindAuthFailed))
	}

	if err := h.client.AuthStart(ctx, auth.DefaultBypassKey); err != nil {
		t.Fatalf("AuthStart: %v", err)
	}
	st, err := h.client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st["state"] != "AUTHENTICATED" {
		t.Fatalf("state after bypass = %v, want AUTHENTICATED", st["state"])
	}

	if f := h.tick(t, 1); f.State != auth.Locked {
		t.Fatalf("state after tick = %v, want LOCKED", f.State)
	}
}

func TestFaultLatchRequiresReset(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	h.onLoop(t, func(context.Context) {
		h.engine.UpsetState(tmr.ReplicaA, auth.State(7))
		h.engine.UpsetState(tmr.ReplicaB, auth.State(8))
	})
	if f := h.tick(t, 1); f.State != auth.Faulted {
		t.Fatalf("state after majority loss = %v, want FAULTED", f.State)
	}

	err := h.client.AuthStart(ctx, auth.DefaultBypassKey)
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("bypass while faulted code = %v, want FailedPrecondition", status.Code(err))
	}

	if err := h.client.AuthReset(ctx); err != nil {
		t.Fatalf("AuthReset: %v", err)
	}
	st, err := h.client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st["state"] != "LOCKED" || st["fault_latched"] != false {
		t.Fatalf("status after reset = %v", st)
	}
}

func TestPushSensorsUpdateLatches(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	if err := h.client.PushAttitude(ctx, 359.5); err != nil {
		t.Fatalf("PushAttitude: %v", err)
	}
	if err := h.client.PushLight(ctx, 5); err != nil {
		t.Fatalf("PushLight: %v", err)
	}
	if got := h.inputs.Yaw.Load(); got != 359.5 {
		t.Fatalf("yaw latch = %v, want 359.5", got)
	}
	st, err := h.client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st["light"] != float64(5) {
		t.Fatalf("status light = %v, want 5", st["light"])
	}
}

func TestCommandIDPropagatesToLogs(t *testing.T) {
	h := newHarness(t)
	ctx := OutgoingCommandID(testContext(t), "cmd-42")

	_ = h.client.AuthStart(ctx, 1)
	if out := h.logs.String(); !strings.Contains(out, "command_id=cmd-42") {
		t.Fatalf("logs missing command id:\n%s", out)
	}
}
