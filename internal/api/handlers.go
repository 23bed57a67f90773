package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-correlator/internal/models"
	"github.com/miradorstack/mirador-correlator/internal/services"
	"github.com/miradorstack/mirador-correlator/internal/utils"
)

// AlertMessage is the wire form of an alert. ReceivedAt is RFC3339 and
// defaults to the time the alert is processed.
type AlertMessage struct {
	ID         string `json:"id,omitempty"`
	Service    string `json:"service"`
	Title      string `json:"title"`
	Source     string `json:"source,omitempty"`
	Severity   string `json:"severity,omitempty"`
	ReceivedAt string `json:"received_at,omitempty"`
}

type CorrelateAlertRequest struct {
	TenantID string       `json:"tenant_id"`
	Alert    AlertMessage `json:"alert"`
}

type CorrelateAlertResponse struct {
	Decision models.Decision `json:"decision"`
}

type RunDiscoveryRequest struct {
	TenantID string `json:"tenant_id"`
	DryRun   bool   `json:"dry_run"`
}

type RunDiscoveryResponse struct {
	Report models.DiscoveryReport `json:"report"`
}

type HealthRequest struct{}

type HealthResponse struct {
	Status        string `json:"status"`
	DecisionP95Ms int64  `json:"decision_p95_ms"`
}

// FromAlertMessage maps the wire alert into the domain alert.
func FromAlertMessage(msg AlertMessage) (models.Alert, error) {
	alert := models.Alert{
		ID:       msg.ID,
		Service:  strings.TrimSpace(msg.Service),
		Title:    msg.Title,
		Source:   msg.Source,
		Severity: msg.Severity,
	}
	if msg.ReceivedAt != "" {
		ts, err := utils.ParseTimestamp(msg.ReceivedAt)
		if err != nil {
			return models.Alert{}, fmt.Errorf("alert.received_at: %w", err)
		}
		alert.ReceivedAt = ts
	}
	return alert, nil
}

// Handler implements CorrelatorServer on top of the correlation and discovery
// use cases.
type Handler struct {
	UnimplementedCorrelatorServer

	logger     *slog.Logger
	correlator *services.CorrelatorService
	discovery  *services.DiscoveryService
}

// NewHandler constructs the gRPC facade. Either service may be nil; the
// matching RPC then reports FailedPrecondition.
func NewHandler(logger *slog.Logger, correlator *services.CorrelatorService, discovery *services.DiscoveryService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, correlator: correlator, discovery: discovery}
}

// CorrelateAlert decides whether the alert joins an open incident.
func (h *Handler) CorrelateAlert(ctx context.Context, req *CorrelateAlertRequest) (*CorrelateAlertResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if h.correlator == nil {
		return nil, status.Error(codes.FailedPrecondition, "correlator not configured")
	}
	alert, err := FromAlertMessage(req.Alert)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	decision, err := h.correlator.Correlate(ctx, req.TenantID, alert)
	if err != nil {
		return nil, h.toStatus("correlate alert", err)
	}
	return &CorrelateAlertResponse{Decision: decision}, nil
}

// RunDiscovery runs one inference pass for the tenant.
func (h *Handler) RunDiscovery(ctx context.Context, req *RunDiscoveryRequest) (*RunDiscoveryResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if h.discovery == nil {
		return nil, status.Error(codes.FailedPrecondition, "discovery not configured")
	}

	report, err := h.discovery.Run(ctx, req.TenantID, services.DiscoveryOptions{DryRun: req.DryRun})
	if err != nil {
		return nil, h.toStatus("run discovery", err)
	}
	return &RunDiscoveryResponse{Report: report}, nil
}

// HealthCheck returns the current health state.
func (h *Handler) HealthCheck(ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
	resp := &HealthResponse{Status: "SERVING"}
	if h.correlator != nil {
		resp.DecisionP95Ms = h.correlator.LatencyP95().Milliseconds()
	}
	return resp, nil
}

func (h *Handler) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, services.ErrNotConfigured):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	h.logger.Error(op+" failed", slog.Any("error", err))
	return status.Error(codes.Internal, fmt.Sprintf("%s failed", op))
}
