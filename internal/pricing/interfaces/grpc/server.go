package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server 封装 grpc.Server 与健康检查
type Server struct {
	*grpc.Server
	Health *health.Server
}

// NewServer 注册定价服务与健康检查
func NewServer(handler PricingServiceServer, opts ...grpc.ServerOption) *Server {
	s := grpc.NewServer(opts...)
	RegisterPricingServiceServer(s, handler)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{Server: s, Health: hs}
}

// GracefulStop 先标记为不可用再停止
func (s *Server) GracefulStop() {
	s.Health.Shutdown()
	s.Server.GracefulStop()
}
