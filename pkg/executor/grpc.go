package executor

import (
	"context"
	"sync"
	"time"

	"github.com/flyteorg/flytestdlib/logger"
	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcretry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"k8s.io/utils/clock"

	"github.com/flyteorg/flowcompiler/pkg/spec"
)

// GRPCSpecExecutor is a remote execution engine whose liveness is reported through the standard gRPC health service.
// Health answers are cached for healthTTL.
type GRPCSpecExecutor struct {
	uri         string
	serviceName string
	config      spec.Config
	producer    SpecProducer
	health      healthpb.HealthClient
	timeout     time.Duration
	healthTTL   time.Duration
	clock       clock.PassiveClock

	mu          sync.Mutex
	lastHealth  Health
	lastChecked time.Time
}

func (e *GRPCSpecExecutor) URI() string {
	return e.uri
}

func (e *GRPCSpecExecutor) Description() string {
	return "grpc spec executor for service " + e.serviceName
}

func (e *GRPCSpecExecutor) GetConfig(_ context.Context) Future {
	return NewSyncFuture(e.config, nil)
}

func (e *GRPCSpecExecutor) GetProducer(_ context.Context) Future {
	if e.producer == nil {
		return NewSyncFuture(nil, ErrProducerNotFound)
	}

	return NewSyncFuture(e.producer, nil)
}

func (e *GRPCSpecExecutor) cachedHealth() (Health, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastChecked.IsZero() || e.clock.Since(e.lastChecked) > e.healthTTL {
		return HealthUnknown, false
	}

	return e.lastHealth, true
}

func (e *GRPCSpecExecutor) recordHealth(h Health) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastHealth = h
	e.lastChecked = e.clock.Now()
}

func (e *GRPCSpecExecutor) GetHealth(ctx context.Context) Future {
	if h, ok := e.cachedHealth(); ok {
		return NewSyncFuture(h, nil)
	}

	return NewAsyncFuture(ctx, func(ctx context.Context) (interface{}, error) {
		tCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err := e.health.Check(tCtx, &healthpb.HealthCheckRequest{Service: e.serviceName})
		if err != nil {
			logger.Warnf(ctx, "health check of executor [%s] failed: %v", e.uri, err)
			e.recordHealth(Unhealthy)
			return Unhealthy, nil
		}

		h := Unhealthy
		if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			h = Healthy
		}

		e.recordHealth(h)
		return h, nil
	})
}

// NewGRPCSpecExecutor builds an executor over an established connection.
func NewGRPCSpecExecutor(uri string, conn grpc.ClientConnInterface, cfg ExecutorConfig, timeout, healthTTL time.Duration,
	producer SpecProducer, clk clock.PassiveClock) *GRPCSpecExecutor {

	return &GRPCSpecExecutor{
		uri:         uri,
		serviceName: cfg.ServiceName,
		config:      spec.Config(cfg.Config),
		producer:    producer,
		health:      healthpb.NewHealthClient(conn),
		timeout:     timeout,
		healthTTL:   healthTTL,
		clock:       clk,
	}
}

// DialExecutor opens an insecure client connection instrumented with prometheus metrics and retries.
func DialExecutor(ctx context.Context, endpoint string, maxRetries uint, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpcmiddleware.ChainUnaryClient(
			grpcprometheus.UnaryClientInterceptor,
			grpcretry.UnaryClientInterceptor(grpcretry.WithMax(maxRetries)),
		)),
	}, opts...)

	conn, err := grpc.DialContext(ctx, endpoint, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial executor endpoint [%s]", endpoint)
	}

	return conn, nil
}
