package rpc

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Oniqq60/civic_report_system/internal/apperr"
	"github.com/Oniqq60/civic_report_system/internal/assignment"
	"github.com/Oniqq60/civic_report_system/internal/auth"
	"github.com/Oniqq60/civic_report_system/internal/task"
)

const ServiceName = "civic.task.v1.TaskService"

type TaskServiceServer interface {
	GetTask(ctx context.Context, req *GetTaskRequest) (*TaskResponse, error)
	TransitionStatus(ctx context.Context, req *TransitionStatusRequest) (*TaskResponse, error)
	AssignResource(ctx context.Context, req *AssignResourceRequest) (*AssignResourceResponse, error)
	AddNote(ctx context.Context, req *AddNoteRequest) (*TaskResponse, error)
}

type Assigner interface {
	Assign(ctx context.Context, taskID string, category task.Category, location task.Location) (assignment.Result, error)
}

// Handler реализует TaskServiceServer поверх доменных сервисов
type Handler struct {
	tasks    task.TaskService
	assigner Assigner
}

func NewHandler(tasks task.TaskService, assigner Assigner) *Handler {
	return &Handler{tasks: tasks, assigner: assigner}
}

func (h *Handler) GetTask(ctx context.Context, req *GetTaskRequest) (*TaskResponse, error) {
	t, err := h.tasks.Get(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	return &TaskResponse{Task: t}, nil
}

func (h *Handler) TransitionStatus(ctx context.Context, req *TransitionStatusRequest) (*TaskResponse, error) {
	if err := requireRole(ctx, auth.RoleTechnician, auth.RoleSupervisor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	t, err := h.tasks.Transition(ctx, task.TransitionRequest{
		TaskID:          req.TaskID,
		Status:          req.Status,
		Actor:           actorFrom(ctx),
		EvidenceImageID: req.EvidenceImageID,
	})
	if err != nil {
		return nil, err
	}
	return &TaskResponse{Task: t}, nil
}

func (h *Handler) AssignResource(ctx context.Context, req *AssignResourceRequest) (*AssignResourceResponse, error) {
	if err := requireRole(ctx, auth.RoleSupervisor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	current, err := h.tasks.Get(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if err := assignment.CheckAssignable(current); err != nil {
		return nil, err
	}
	res, err := h.assigner.Assign(ctx, current.ID, current.Category, current.Location)
	if err != nil {
		return nil, err
	}
	return &AssignResourceResponse{Result: res}, nil
}

func (h *Handler) AddNote(ctx context.Context, req *AddNoteRequest) (*TaskResponse, error) {
	if err := requireRole(ctx, auth.RoleTechnician, auth.RoleSupervisor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	t, err := h.tasks.AddNote(ctx, req.TaskID, req.Text, actorFrom(ctx))
	if err != nil {
		return nil, err
	}
	return &TaskResponse{Task: t}, nil
}

func requireRole(ctx context.Context, roles ...auth.Role) error {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return apperr.New(apperr.Unauthorized, "authentication required", nil)
	}
	if !claims.HasRole(roles...) {
		return apperr.Newf(apperr.Forbidden, "role %s is not allowed to perform this action", claims.Role)
	}
	return nil
}

func actorFrom(ctx context.Context) task.Actor {
	claims, _ := auth.ClaimsFromContext(ctx)
	return task.Actor{ID: claims.UserID, Name: claims.Name}
}

// NewServer собирает gRPC сервер с сервисом задач и стандартным health
func NewServer(handler TaskServiceServer, verifier *auth.Verifier, logger *zap.Logger) *grpc.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(logger),
		authInterceptor(verifier),
		errorInterceptor(),
	))
	RegisterTaskServiceServer(srv, handler)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

func errorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return nil, apperr.From(err).GRPCStatus().Err()
		}
		return resp, nil
	}
}

// authInterceptor проверяет bearer-токен из metadata только для методов сервиса задач
func authInterceptor(verifier *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, apperr.New(apperr.Unauthorized, "authorization metadata missing", nil).GRPCStatus().Err()
		}
		raw := strings.TrimSpace(values[0])
		if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
			raw = raw[7:]
		}
		claims, err := verifier.ParseToken(ctx, raw)
		if err != nil {
			return nil, apperr.New(apperr.Unauthorized, "invalid token", err).GRPCStatus().Err()
		}
		return handler(auth.WithClaims(ctx, claims), req)
	}
}

// loggingInterceptor стоит первым и видит уже переведённый в gRPC статус
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		switch code {
		case codes.OK:
			logger.Info("grpc call", fields...)
		case codes.Internal, codes.Unavailable, codes.Unknown:
			logger.Error("grpc call", append(fields, zap.Error(err))...)
		default:
			logger.Warn("grpc call", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
