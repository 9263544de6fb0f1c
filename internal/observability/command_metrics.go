package observability

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// CommandCollector records counts and latencies of ground commands.
type CommandCollector struct {
	Requests  *prometheus.CounterVec
	Durations *prometheus.HistogramVec
}

// NewCommandCollector registers command metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCommandCollector(reg prometheus.Registerer) (*CommandCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stellarauth_commands_total",
		Help: "Total number of handled commands, labeled by method and gRPC status code.",
	}, []string{"method", "code"}), "stellarauth_commands_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stellarauth_command_duration_seconds",
		Help:    "Command latency in seconds, including time spent waiting for the tick loop.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method"}), "stellarauth_command_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &CommandCollector{Requests: requests, Durations: durations}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *CommandCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		method := MethodName(fullMethod)
		c.Requests.WithLabelValues(method, status.Code(err).String()).Inc()
		c.Durations.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// MethodName returns the last path element of a fully-qualified gRPC method,
// or "unknown" when there is none.
func MethodName(fullMethod string) string {
	fullMethod = strings.Trim(fullMethod, "/")
	if i := strings.LastIndex(fullMethod, "/"); i >= 0 {
		fullMethod = fullMethod[i+1:]
	}
	if fullMethod == "" {
		return "unknown"
	}
	return fullMethod
}
