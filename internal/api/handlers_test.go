package api

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/miradorstack/mirador-correlator/internal/config"
	"github.com/miradorstack/mirador-correlator/internal/correlation"
	"github.com/miradorstack/mirador-correlator/internal/graph"
	"github.com/miradorstack/mirador-correlator/internal/inference"
	"github.com/miradorstack/mirador-correlator/internal/models"
	"github.com/miradorstack/mirador-correlator/internal/repo"
	"github.com/miradorstack/mirador-correlator/internal/services"
)

func TestFromAlertMessage(t *testing.T) {
	alert, err := FromAlertMessage(AlertMessage{Service: " checkout ", Title: "5xx spike", ReceivedAt: "2026-05-04T10:00:00+02:00"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if alert.Service != "checkout" {
		t.Fatalf("unexpected service: %q", alert.Service)
	}
	if !alert.ReceivedAt.Equal(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected received_at: %v", alert.ReceivedAt)
	}

	if bare, err := FromAlertMessage(AlertMessage{Title: "no service"}); err != nil || !bare.ReceivedAt.IsZero() {
		t.Fatalf("alerts without service or timestamp are accepted, got %+v (%v)", bare, err)
	}
	if _, err := FromAlertMessage(AlertMessage{Service: "api", ReceivedAt: "yesterday"}); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}

func newTestHandler(t *testing.T) (*Handler, *repo.MemoryIncidentStore) {
	t.Helper()
	incidents := repo.NewMemoryIncidentStore()
	incidents.Open("acme", models.Incident{ID: "inc-1", Services: []string{"checkout"}, Title: "Checkout 5xx spike", UpdatedAt: time.Now().UTC()})

	store := graph.NewMemoryStore()
	orch := correlation.NewOrchestrator(nil, nil, correlation.Options{},
		correlation.Weighted{Strategy: correlation.NewTimeWindow(5 * time.Minute), Weight: 0.3},
		correlation.Weighted{Strategy: correlation.NewTopology(store, 3, nil), Weight: 0.3},
		correlation.Weighted{Strategy: correlation.NewSimilarity(nil), Weight: 0.4},
	)
	correlator := services.NewCorrelatorService(nil, orch, incidents)

	snapshot := models.Snapshot{
		Nodes: []models.ServiceNode{
			{Name: "checkout", ResourceType: models.ResourceVM},
			{Name: "orders-db", ResourceType: models.ResourceDatabase},
		},
		Enrichment: models.Enrichment{EnvVars: map[string][]models.EnvVar{"checkout": {{Key: "DB", Value: "orders-db"}}}},
	}
	discovery := services.NewDiscoveryService(nil, repo.NewSnapshotSource(snapshot),
		inference.NewOrchestrator(nil, nil, inference.Options{}, inference.DefaultStrategies(nil)...),
		graph.NewWriter(store, 0, nil))

	return NewHandler(nil, correlator, discovery), incidents
}

func dialBufconn(t *testing.T, handler CorrelatorServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServerWithListener(config.ServerConfig{GracefulTimeout: time.Second}, lis, slog.New(slog.NewTextHandler(io.Discard, nil)), handler)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestCorrelatorOverGRPC(t *testing.T) {
	handler, incidents := newTestHandler(t)
	conn := dialBufconn(t, handler)
	client := NewCorrelatorClient(conn)
	ctx := context.Background()

	resp, err := client.CorrelateAlert(ctx, &CorrelateAlertRequest{
		TenantID: "acme",
		Alert:    AlertMessage{Service: "checkout", Title: "Checkout 5xx spike"},
	})
	if err != nil {
		t.Fatalf("CorrelateAlert: %v", err)
	}
	if !resp.Decision.Matched || resp.Decision.IncidentID != "inc-1" {
		t.Fatalf("expected match on inc-1, got %+v", resp.Decision)
	}
	if len(incidents.Decisions()) != 1 {
		t.Fatalf("decision should be recorded")
	}

	_, err = client.CorrelateAlert(ctx, &CorrelateAlertRequest{TenantID: "acme", Alert: AlertMessage{Service: "checkout", ReceivedAt: "soon"}})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for bad timestamp, got %v", err)
	}
	_, err = client.CorrelateAlert(ctx, &CorrelateAlertRequest{Alert: AlertMessage{Service: "checkout"}})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for missing tenant, got %v", err)
	}

	disc, err := client.RunDiscovery(ctx, &RunDiscoveryRequest{TenantID: "acme", DryRun: true})
	if err != nil {
		t.Fatalf("RunDiscovery: %v", err)
	}
	if len(disc.Report.Edges) != 1 || disc.Report.Edges[0].ToService != "orders-db" || !disc.Report.DryRun {
		t.Fatalf("unexpected discovery report %+v", disc.Report)
	}

	health, err := client.HealthCheck(ctx, &HealthRequest{})
	if err != nil || health.Status != "SERVING" {
		t.Fatalf("unexpected health %+v (%v)", health, err)
	}

	std, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || std.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("standard health check failed: %+v (%v)", std, err)
	}
}

func TestHandlerWithoutServices(t *testing.T) {
	handler := NewHandler(nil, nil, nil)
	if _, err := handler.CorrelateAlert(context.Background(), &CorrelateAlertRequest{}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
	if _, err := handler.RunDiscovery(context.Background(), &RunDiscoveryRequest{TenantID: "acme"}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
	if _, err := handler.CorrelateAlert(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for nil request, got %v", err)
	}
}

type panickingServer struct {
	UnimplementedCorrelatorServer
}

func (panickingServer) CorrelateAlert(context.Context, *CorrelateAlertRequest) (*CorrelateAlertResponse, error) {
	panic("boom")
}

func TestServerRecoversFromHandlerPanic(t *testing.T) {
	conn := dialBufconn(t, panickingServer{})
	client := NewCorrelatorClient(conn)

	_, err := client.CorrelateAlert(context.Background(), &CorrelateAlertRequest{TenantID: "acme"})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if _, err := client.HealthCheck(context.Background(), &HealthRequest{}); status.Code(err) != codes.Unimplemented {
		t.Fatalf("server should keep serving after a panic, got %v", err)
	}
}
