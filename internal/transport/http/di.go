package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	appguesttoken "github.com/astro-web3/superset-guest-relay/internal/app/guesttoken"
	"github.com/astro-web3/superset-guest-relay/internal/config"
	"github.com/astro-web3/superset-guest-relay/internal/domain/guesttoken"
	"github.com/astro-web3/superset-guest-relay/internal/infra/ratelimit"
	"github.com/astro-web3/superset-guest-relay/internal/infra/superset"
	grpctransport "github.com/astro-web3/superset-guest-relay/internal/transport/grpc"
	"github.com/astro-web3/superset-guest-relay/pkg/logger"
	"github.com/astro-web3/superset-guest-relay/pkg/otel"
	"github.com/astro-web3/superset-guest-relay/pkg/tracer"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	httpServer  *http.Server
	redisClient *redis.Client
}

const (
	idleTimeoutMultiplier = 2
	serviceName           = "superset-guest-relay"
)

func NewServer(cfg *config.Config) (*Server, error) {
	logger.Init(logger.Options{
		Level:     cfg.Observability.LogLevel,
		Format:    cfg.Observability.Format,
		AddSource: cfg.Observability.LogSource,
		Service:   serviceName,
	})

	otelCfg := otel.DefaultConfig(serviceName)
	otelCfg.EndpointURL = cfg.Observability.TracingEndpointURL
	otelCfg.Enabled = cfg.Observability.TraceEnabled
	if err := tracer.InitTracer(otelCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	appService, err := NewAppService(cfg)
	if err != nil {
		return nil, err
	}

	limiter, redisClient, err := newLimiter(cfg)
	if err != nil {
		return nil, err
	}

	rpcPath, rpcHandler := grpctransport.NewHandler(appService).Route()
	router, err := NewRouter(NewHandler(appService), cfg, limiter, RPCRoute{Path: rpcPath, Handler: rpcHandler})
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * idleTimeoutMultiplier,
	}

	return &Server{
		httpServer:  httpServer,
		redisClient: redisClient,
	}, nil
}

// NewAppService assembles the relay chain from configuration.
func NewAppService(cfg *config.Config) (appguesttoken.Service, error) {
	credentials, err := guesttoken.NewCredentialSource(
		cfg.Auth.Strategy,
		cfg.Superset.ServiceAccount.Username,
		cfg.Superset.ServiceAccount.Password,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure credentials: %w", err)
	}

	supersetClient := superset.NewClient(superset.Config{
		BaseURL:    cfg.Superset.BaseURL,
		Referer:    cfg.Superset.Referer,
		Timeout:    cfg.Superset.Timeout,
		RetryCount: cfg.Superset.RetryCount,
	})

	resources := make([]superset.Resource, 0, len(cfg.Guest.Resources))
	for _, r := range cfg.Guest.Resources {
		resources = append(resources, superset.Resource{Type: r.Type, ID: r.ID})
	}
	rls := make([]superset.RLSRule, 0, len(cfg.Guest.RLS))
	for _, r := range cfg.Guest.RLS {
		rls = append(rls, superset.RLSRule{Dataset: r.Dataset, Clause: r.Clause})
	}

	domainService := guesttoken.NewService(
		supersetClient,
		credentials,
		guesttoken.NewStaticPolicy(resources, rls),
		guesttoken.Identity{
			UsernamePrefix: cfg.Guest.UsernamePrefix,
			FirstName:      cfg.Guest.FirstName,
			LastName:       cfg.Guest.LastName,
		},
	)

	return appguesttoken.NewService(domainService), nil
}

func newLimiter(cfg *config.Config) (ratelimit.Limiter, *redis.Client, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil, nil
	}

	if cfg.Redis.URL == "" {
		return ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst), nil, nil
	}

	redisClient, err := ratelimit.NewRedisClient(cfg.Redis.URL, cfg.Redis.PoolSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window), redisClient, nil
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.redisClient != nil {
		err = errors.Join(err, s.redisClient.Close())
	}
	return err
}
