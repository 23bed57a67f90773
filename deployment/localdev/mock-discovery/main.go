package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/miradorstack/mirador-correlator/internal/models"
	"github.com/miradorstack/mirador-correlator/internal/utils"
)

func sampleResources() []models.ServiceNode {
	return []models.ServiceNode{
		{Name: "edge-alb", ResourceType: models.ResourceLoadBalancer, Provider: "aws", VPCID: "vpc-local"},
		{Name: "checkout", ResourceType: models.ResourceKubernetesCluster, Provider: "aws", VPCID: "vpc-local", Endpoint: "checkout.svc.local:8080"},
		{Name: "payments", ResourceType: models.ResourceKubernetesCluster, Provider: "aws", VPCID: "vpc-local", Endpoint: "payments.svc.local:8443"},
		{Name: "orders-db", ResourceType: models.ResourceDatabase, Provider: "aws", VPCID: "vpc-local", Endpoint: "orders-db.local:5432", CloudResourceID: "arn:aws:rds:eu-west-1:000000000000:db:orders-db"},
		{Name: "session-cache", ResourceType: models.ResourceCache, Provider: "aws", VPCID: "vpc-local", Endpoint: "session.cache.local:6379"},
		{Name: "order-events", ResourceType: models.ResourceMessageQueue, Provider: "aws", CloudResourceID: "arn:aws:sqs:eu-west-1:000000000000:order-events"},
		{Name: "receipt-mailer", ResourceType: models.ResourceServerless, Provider: "aws", CloudResourceID: "arn:aws:lambda:eu-west-1:000000000000:function:receipt-mailer"},
		{Name: "app-secrets", ResourceType: models.ResourceSecretStore, Provider: "aws", CloudResourceID: "arn:aws:secretsmanager:eu-west-1:000000000000:secret:app"},
	}
}

func sampleEnrichment() models.Enrichment {
	return models.Enrichment{
		EnvVars: map[string][]models.EnvVar{
			"checkout": {
				{Key: "PAYMENTS_URL", Value: "https://payments.svc.local:8443"},
				{Key: "DATABASE_URL", Value: "postgres://orders-db.local:5432/orders"},
				{Key: "ORDER_EVENTS_QUEUE", Value: "arn:aws:sqs:eu-west-1:000000000000:order-events"},
			},
			"payments": {
				{Key: "REDIS_ADDR", Value: "session.cache.local:6379"},
			},
		},
		LoadBalancers: []models.LoadBalancer{
			{Name: "edge-alb", TargetGroups: []models.TargetGroup{{Name: "web", Targets: []string{"checkout"}}}},
		},
		EventSources: []models.EventSourceMapping{
			{Function: "receipt-mailer", Source: "arn:aws:sqs:eu-west-1:000000000000:order-events"},
		},
		SecretAccess: []models.SecretAccess{
			{Consumer: "payments", Store: "arn:aws:secretsmanager:eu-west-1:000000000000:secret:app-AbCdEf", SecretName: "app"},
		},
	}
}

func main() {
	logger := utils.NewLogger(os.Getenv("LOG_LEVEL"), false).With(slog.String("component", "discovery-mock"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/discovery/resources", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, logger, map[string]any{"resources": sampleResources()})
	})

	mux.HandleFunc("/api/v1/discovery/enrichment", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, logger, sampleEnrichment())
	})

	addr := os.Getenv("MOCK_DISCOVERY_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
