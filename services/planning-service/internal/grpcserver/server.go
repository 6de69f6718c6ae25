package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/md-rashed-zaman/trainingplanner/libs/auth"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/availability"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/dedup"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
)

type Deduplicator interface {
	RunOnce(ctx context.Context, req dedup.Request) (dedup.Report, error)
}

type server struct {
	engine   *availability.Engine
	dedup    Deduplicator
	verifier *auth.Verifier
	logger   *slog.Logger
	now      func() time.Time
}

// Register mounts AvailabilityService and the standard health service on
// srv. A nil verifier refuses every Deduplicate call.
func Register(srv *grpc.Server, engine *availability.Engine, d Deduplicator, verifier *auth.Verifier, logger *slog.Logger) *health.Server {
	srv.RegisterService(&ServiceDesc, &server{engine: engine, dedup: d, verifier: verifier, logger: logger, now: time.Now})
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return hs
}

func field(req *structpb.Struct, name string) string {
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

func (s *server) ResolveAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q := availability.Query{
		PersonID: field(req, "person_id"),
		Date:     field(req, "date"),
		Weekday:  model.Weekday(field(req, "weekday")),
		Slot:     model.Slot(field(req, "slot")),
	}
	d, err := s.engine.Resolve(ctx, q)
	degraded := false
	switch {
	case err == nil:
	case errors.Is(err, availability.ErrInvalidQuery):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, availability.ErrStoreUnavailable):
		s.logger.Error("availability resolved as unknown", "person_id", q.PersonID, "err", err)
		degraded = true
	default:
		return nil, status.Error(codes.Internal, "resolution failed")
	}

	ids := make([]any, 0, len(d.OverrideIDs))
	for _, id := range d.OverrideIDs {
		ids = append(ids, id)
	}
	out, err := structpb.NewStruct(map[string]any{
		"person_id":    q.PersonID,
		"date":         q.Date,
		"slot":         string(q.Slot),
		"status":       string(d.Status),
		"source":       string(d.Source),
		"declared":     string(d.Declared),
		"record_id":    d.RecordID,
		"override_ids": ids,
		"degraded":     degraded,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *server) WeekWindow(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cal := s.engine.Calendar()
	date := field(req, "date")
	if date == "" {
		date = cal.Today(s.now())
	}
	normalized, err := cal.Normalize(date)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid date")
	}
	week, err := cal.WeekWindowOf(normalized)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid date")
	}
	days := make([]any, 0, len(week))
	for _, d := range week {
		days = append(days, d)
	}
	out, err := structpb.NewStruct(map[string]any{"date": normalized, "week": days})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *server) Deduplicate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	report, err := s.dedup.RunOnce(ctx, dedup.Request{
		PersonID: field(req, "person_id"),
		DryRun:   req.GetFields()["dry_run"].GetBoolValue(),
	})
	body, convErr := reportStruct(report)
	if convErr != nil {
		return nil, status.Error(codes.Internal, convErr.Error())
	}
	switch {
	case err == nil:
		return body, nil
	case errors.Is(err, dedup.ErrAlreadyRunning):
		return nil, status.Error(codes.Aborted, err.Error())
	case errors.Is(err, dedup.ErrPartialDeletion):
		return nil, withReport(codes.Internal, err, body)
	default:
		s.logger.Error("deduplication failed", "err", err)
		if report.RunID != "" {
			return nil, withReport(codes.Unavailable, err, body)
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}
}

func (s *server) authorize(ctx context.Context) error {
	if s.verifier == nil {
		return status.Error(codes.PermissionDenied, "maintenance disabled")
	}
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 || !strings.HasPrefix(values[0], "Bearer ") {
		return status.Error(codes.Unauthenticated, "missing bearer token")
	}
	claims, err := s.verifier.Verify(strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer ")))
	if err != nil {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	if claims.Role != "admin" {
		return status.Error(codes.PermissionDenied, "admin role required")
	}
	return nil
}

func reportStruct(report dedup.Report) (*structpb.Struct, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// withReport attaches the run report as a status detail.
func withReport(code codes.Code, err error, report *structpb.Struct) error {
	st, detailErr := status.New(code, err.Error()).WithDetails(report)
	if detailErr != nil {
		return status.Error(code, err.Error())
	}
	return st.Err()
}
