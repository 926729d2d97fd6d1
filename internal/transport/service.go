// Package transport exposes the persona engine as the persona.v1.PersonaService
// gRPC API. Messages are google.protobuf.Struct values carrying the JSON forms
// in messages.go, so no generated code is needed on either side.
package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/orchestrator"
	"github.com/danielpatrickdp/persona-state/internal/priority"
	"github.com/danielpatrickdp/persona-state/internal/update"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "persona.v1.PersonaService"

// #region service-desc

// PersonaServer is the server API for persona.v1.PersonaService.
type PersonaServer interface {
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyFeedback(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Observe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordActivity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Targets(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Rank(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Onboard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Explain(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(PersonaServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(method string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PersonaServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PersonaServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes persona.v1.PersonaService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PersonaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetState", Handler: methodHandler("GetState", PersonaServer.GetState)},
		{MethodName: "ApplyFeedback", Handler: methodHandler("ApplyFeedback", PersonaServer.ApplyFeedback)},
		{MethodName: "Observe", Handler: methodHandler("Observe", PersonaServer.Observe)},
		{MethodName: "RecordActivity", Handler: methodHandler("RecordActivity", PersonaServer.RecordActivity)},
		{MethodName: "Targets", Handler: methodHandler("Targets", PersonaServer.Targets)},
		{MethodName: "Rank", Handler: methodHandler("Rank", PersonaServer.Rank)},
		{MethodName: "History", Handler: methodHandler("History", PersonaServer.History)},
		{MethodName: "Onboard", Handler: methodHandler("Onboard", PersonaServer.Onboard)},
		{MethodName: "Explain", Handler: methodHandler("Explain", PersonaServer.Explain)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "persona/v1/persona.proto",
}

// RegisterPersonaServer registers srv on s.
func RegisterPersonaServer(s grpc.ServiceRegistrar, srv PersonaServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// #endregion service-desc

// #region service

// Service implements PersonaServer on top of the orchestrator.
type Service struct {
	orch *orchestrator.Orchestrator
}

// NewService creates the gRPC service.
func NewService(orch *orchestrator.Orchestrator) *Service {
	return &Service{orch: orch}
}

func (s *Service) GetState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req UserRequest
	if err := decodeUser(in, &req); err != nil {
		return nil, apperrors.HandleError(err)
	}
	st, err := s.orch.Store().Get(ctx, req.UserID)
	if err != nil {
		return nil, apperrors.HandleError(err)
	}
	return reply(st)
}

func (s *Service) ApplyFeedback(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ApplyFeedbackRequest
	if err := decode(in, &req); err != nil {
		return nil, apperrors.HandleError(err)
	}
	if req.UserID == "" {
		return nil, apperrors.HandleError(apperrors.InvalidArgument("user_id is required"))
	}
	events := make([]update.FeedbackEvent, len(req.Events))
	for i, e := range req.Events {
		events[i] = e.toDomain()
	}
	out, err := s.orch.Store().Update(ctx, req.UserID, events...)
	if err != nil {
		return nil, apperrors.HandleError(err)
	}
	return reply(UpdateResponse{State: out.State, Results: resultsFromDomain(out.Results)})
}

func (s *Service) Observe(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req Observation
	if err := decode(in, &req); err != nil {
		return nil, apperrors.HandleError(err)
	}
	res, err := s.orch.Observe(ctx, req.toDomain())
	if err != nil {
		return nil, apperrors.HandleError(err)
	}
	resp := UpdateResponse{Deferred: res.Deferred, State: res.Outcome.State, Results: resultsFromDomain(res.Outcome.Results)}
	if res.Deferred {
		if resp.State, err = s.orch.Store().Get(ctx, req.UserID); err != nil {
			return nil, apperrors.HandleError(err)
		}
	}
	return reply(resp)
}

func (s *Service) RecordActivity(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ActivityRequest
	if err := decode(in, &req); err != nil {
		return nil, apperrors.HandleError(err)
	}
	rec, err := s.orch.RecordActivity(ctx, activity.Record{
		UserID:    req.UserID,
		Kind:      activity.Kind(req.Kind),
		Ref:       req.Ref,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		return nil, apperrors.HandleError(err)
	}
	return reply(ActivityResponse{ID: rec.ID, Timestamp: rec.Timestamp})
}

func (s *Service) Targets(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req UserRequest
	if err := decodeUser(in, &req); err != nil {
		return nil, apperrors.HandleError(err)
	}
	report, err := s.orch.Targets(ctx, req.UserID, req.At)
	if err != nil {
		return nil, apperrors.HandleError(err)
	}
	t, p := report.Targets, report.Progress
	return reply(TargetsResponse{
		Day:            t.Day,
		Posts:          t.Posts,
		Replies:        t.Replies,
		Likes:          t.Likes,
		Follows:        t.Follows,
		Multiplier:     t.Multiplier,
		FatigueFactor:  t.FatigueFactor,
		FatigueSignals: t.FatigueSignals,
		Rationale:      t.Rationale,
		Completed:      countsToWire(p.Completed),
		Remaining:      countsToWire(p.Remaining),
		Percentage:     p.Percentage,
	})
}

func (s *Service) Rank(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RankRequest
	if err := decode(in, &req); err != nil {
		return nil, apperrors.HandleError(err)
	}
	if req.UserID == "" {
		return nil, apperrors.HandleError(apperrors.InvalidArgument("user_id is required"))
	}
	candidates := make([]priority.Action, len(req.Candidates))
	for i, c := range req.Candidates {
		candidates[i] = c.toDomain()
	}
	ranked, err := s.orch.Rank(ctx, req.UserID, candidates)
	if err != nil {
		return nil, apperrors.HandleError(err)
	}
	out := RankResponse{Actions: make([]Action, len(ranked))}
	for i, a := range ranked {
		out.Actions[i] = actionFromDomain(a)
	}
	return reply(out)
}

func (s *Service) History(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req UserRequest
	if err := decodeUser(in, &req); err != nil {
		return nil, apperrors.HandleError(err)
	}
	recs, err := s.orch.Store().History(ctx, req.UserID, req.Limit)
	if err != nil {
		return nil, apperrors.HandleError(err)
	}
	return reply(HistoryResponse{Records: recs})
}

func (s *Service) Onboard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req OnboardRequest
	if err := decode(in, &req); err != nil {
		return nil, apperrors.HandleError(err)
	}
	st, err := s.orch.Onboard(ctx, req.UserID, req.toDomain())
	if err != nil {
		return nil, apperrors.HandleError(err)
	}
	return reply(st)
}

func (s *Service) Explain(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ExplainRequest
	if err := decode(in, &req); err != nil {
		return nil, apperrors.HandleError(err)
	}
	if req.UserID == "" {
		return nil, apperrors.HandleError(apperrors.InvalidArgument("user_id is required"))
	}
	out, err := s.orch.Explain(ctx, req.UserID, req.Lang, req.Limit)
	if err != nil {
		return nil, apperrors.HandleError(err)
	}
	return reply(ExplainResponse{Summary: out.Summary, ChangeLog: out.ChangeLog})
}

func decodeUser(in *structpb.Struct, req *UserRequest) error {
	if err := decode(in, req); err != nil {
		return err
	}
	if req.UserID == "" {
		return apperrors.InvalidArgument("user_id is required")
	}
	return nil
}

func reply(v any) (*structpb.Struct, error) {
	out, err := encode(v)
	if err != nil {
		return nil, apperrors.HandleError(err)
	}
	return out, nil
}

// #endregion service

// #region interceptor

// loggingInterceptor logs every call with its status code and duration.
func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc call", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
		return resp, err
	}
}

// #endregion interceptor
