package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"PerpVault/internal/observability"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GRPCServer serves the PerpVault service over gRPC and the same methods
// as HTTP/JSON through a grpc-gateway mux.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	svc           *Service
	healthChecker *observability.HealthChecker
	log           zerolog.Logger
}

// ServerDeps holds everything the server needs besides its addresses.
type ServerDeps struct {
	Service       Deps
	HealthChecker *observability.HealthChecker
	Logger        zerolog.Logger
}

// NewGRPCServer creates the gRPC server with the service, health and
// reflection registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	s := &GRPCServer{
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		svc:           NewService(deps.Service),
		healthChecker: deps.HealthChecker,
		log:           deps.Logger,
	}
	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	s.grpcServer.RegisterService(&ServiceDesc, s.svc)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, healthServer)
	if s.healthChecker != nil {
		s.healthChecker.AttachGRPC(healthServer)
	} else {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	// Reflection for grpcurl / grpcui
	reflection.Register(s.grpcServer)
	return s
}

// Server exposes the underlying grpc.Server, e.g. for bufconn tests.
func (s *GRPCServer) Server() *grpc.Server { return s.grpcServer }

func (s *GRPCServer) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Str("method", info.FullMethod).Str("code", status.Code(err).String()).
			Dur("took", time.Since(start)).Msg("rpc failed")
		return resp, err
	}
	s.log.Debug().Str("method", info.FullMethod).Dur("took", time.Since(start)).Msg("rpc")
	return resp, nil
}

// StartGRPC serves until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway serves HTTP/JSON, health and metrics until ctx is
// cancelled.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("HTTP gateway shutdown")
		}
	}()

	s.log.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the HTTP mux. Gateway routes call the service in-process
// rather than proxying through a gRPC client connection.
func (s *GRPCServer) Handler() http.Handler {
	gw := runtime.NewServeMux()
	routes := []struct {
		method, pattern string
		h               runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/commands/{event_type}", s.submitCommand},
		{http.MethodPost, "/v1/prices/{feed}", s.injectPrice},
		{http.MethodGet, "/v1/vault", s.handle(func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return s.svc.GetVault(ctx, &Empty{})
		})},
		{http.MethodGet, "/v1/vault/live", s.handle(func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return s.svc.GetLiveVault(ctx, &Empty{})
		})},
		{http.MethodGet, "/v1/fees", s.handle(func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return s.svc.GetFeePools(ctx, &Empty{})
		})},
		{http.MethodGet, "/v1/accounts/{owner}/positions", s.handle(func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return s.svc.GetPositions(ctx, &OwnerRequest{Owner: p["owner"]})
		})},
		{http.MethodGet, "/v1/accounts/{owner}/balance", s.handle(func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return s.svc.GetBalance(ctx, &OwnerRequest{Owner: p["owner"]})
		})},
		{http.MethodGet, "/v1/accounts/{owner}/stake", s.handle(func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return s.svc.GetStake(ctx, &OwnerRequest{Owner: p["owner"]})
		})},
		{http.MethodGet, "/v1/accounts/{owner}/trades", s.handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			req, err := historyRequest(r, p)
			if err != nil {
				return nil, err
			}
			return s.svc.ListTrades(ctx, req)
		})},
		{http.MethodGet, "/v1/accounts/{owner}/funding", s.handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			req, err := historyRequest(r, p)
			if err != nil {
				return nil, err
			}
			return s.svc.ListFunding(ctx, req)
		})},
		{http.MethodGet, "/v1/accounts/{owner}/journals", s.handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			req, err := historyRequest(r, p)
			if err != nil {
				return nil, err
			}
			return s.svc.ListJournals(ctx, req)
		})},
		{http.MethodGet, "/v1/admin/integrity", s.handle(func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return s.svc.VerifyIntegrity(ctx, &Empty{})
		})},
		{http.MethodGet, "/v1/admin/event-log", s.handle(func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return s.svc.GetEventLogInfo(ctx, &Empty{})
		})},
		{http.MethodPost, "/v1/admin/snapshot", s.handle(func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return s.svc.TakeSnapshot(ctx, &Empty{})
		})},
		{http.MethodPost, "/v1/admin/rebuild", s.handle(func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return s.svc.RebuildProjections(ctx, &Empty{})
		})},
	}
	for _, rt := range routes {
		if err := gw.HandlePath(rt.method, rt.pattern, rt.h); err != nil {
			// Patterns are constants; a failure here is a programming error.
			panic(fmt.Sprintf("register %s %s: %v", rt.method, rt.pattern, err))
		}
	}

	mux := http.NewServeMux()
	if s.healthChecker != nil {
		mux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		mux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", gw)
	return mux
}

type callFunc func(ctx context.Context, r *http.Request, params map[string]string) (any, error)

func (s *GRPCServer) handle(fn callFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		resp, err := fn(r.Context(), r, params)
		s.respond(w, resp, err)
	}
}

func (s *GRPCServer) submitCommand(w http.ResponseWriter, r *http.Request, params map[string]string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.respond(w, nil, status.Errorf(codes.InvalidArgument, "read body: %v", err))
		return
	}
	resp, err := s.svc.SubmitCommand(r.Context(), &SubmitCommandRequest{
		EventType: params["event_type"],
		Payload:   body,
	})
	s.respond(w, resp, err)
}

func (s *GRPCServer) injectPrice(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req InjectPriceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		s.respond(w, nil, status.Errorf(codes.InvalidArgument, "decode body: %v", err))
		return
	}
	req.Feed = params["feed"]
	resp, err := s.svc.InjectPrice(r.Context(), &req)
	s.respond(w, resp, err)
}

var jsonMarshaler = &runtime.JSONBuiltin{}

func (s *GRPCServer) respond(w http.ResponseWriter, resp any, err error) {
	w.Header().Set("Content-Type", jsonMarshaler.ContentType(resp))
	code := http.StatusOK
	body := resp
	if err != nil {
		st := status.Convert(err)
		code = runtime.HTTPStatusFromCode(st.Code())
		body = map[string]string{"code": st.Code().String(), "error": st.Message()}
	}
	data, merr := jsonMarshaler.Marshal(body)
	if merr != nil {
		s.log.Error().Err(merr).Msg("marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	if _, werr := w.Write(data); werr != nil {
		s.log.Debug().Err(werr).Msg("write response")
	}
}

func historyRequest(r *http.Request, params map[string]string) (*HistoryRequest, error) {
	q := r.URL.Query()
	req := &HistoryRequest{Owner: params["owner"]}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid limit %q", v)
		}
		req.Limit = n
	}
	if v := q.Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid before %q", v)
		}
		req.Before = n
	}
	if v := q.Get("product_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid product_id %q", v)
		}
		pid := uint32(n)
		req.ProductID = &pid
	}
	return req, nil
}
