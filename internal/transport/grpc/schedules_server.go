package grpc

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"schedula/booking/internal/domain"
	"schedula/booking/internal/service/schedules"
)

const SchedulesServiceName = "schedula.booking.v1.Schedules"

type SchedulesServer struct {
	svc schedulesService
	log *slog.Logger
}

type schedulesService interface {
	CreateSchedule(ctx context.Context, in schedules.CreateInput) (domain.WeeklySchedule, error)
	ListSchedules(ctx context.Context, employeeID uuid.UUID) ([]domain.WeeklySchedule, error)
	GetSchedule(ctx context.Context, scheduleID uuid.UUID) (domain.WeeklySchedule, error)
	UpdateSchedule(ctx context.Context, in schedules.UpdateInput) (domain.WeeklySchedule, error)
	DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) error
	AddBreak(ctx context.Context, in schedules.BreakInput) (domain.Break, error)
	DeleteBreak(ctx context.Context, breakID uuid.UUID) error
}

type schedulesHandler interface {
	CreateSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListSchedules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AddBreak(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteBreak(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var schedulesServiceDesc = grpc.ServiceDesc{
	ServiceName: SchedulesServiceName,
	HandlerType: (*schedulesHandler)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(SchedulesServiceName, "CreateSchedule", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(schedulesHandler).CreateSchedule(ctx, req)
		}),
		unaryHandler(SchedulesServiceName, "ListSchedules", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(schedulesHandler).ListSchedules(ctx, req)
		}),
		unaryHandler(SchedulesServiceName, "GetSchedule", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(schedulesHandler).GetSchedule(ctx, req)
		}),
		unaryHandler(SchedulesServiceName, "UpdateSchedule", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(schedulesHandler).UpdateSchedule(ctx, req)
		}),
		unaryHandler(SchedulesServiceName, "DeleteSchedule", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(schedulesHandler).DeleteSchedule(ctx, req)
		}),
		unaryHandler(SchedulesServiceName, "AddBreak", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(schedulesHandler).AddBreak(ctx, req)
		}),
		unaryHandler(SchedulesServiceName, "DeleteBreak", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(schedulesHandler).DeleteBreak(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "schedula/booking/v1/schedules.proto",
}

func NewSchedulesServer(svc schedulesService, log *slog.Logger) *SchedulesServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulesServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.schedules")),
	}
}

func RegisterSchedulesServer(s grpc.ServiceRegistrar, srv *SchedulesServer) {
	s.RegisterService(&schedulesServiceDesc, srv)
}

func (s *SchedulesServer) CreateSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateSchedule"))

	f := readFields(req)
	var (
		in  schedules.CreateInput
		err error
	)
	if in.EmployeeID, err = f.id("employee_id"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.Weekday, err = f.weekday("weekday"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.StartTime, err = f.timeOfDay("start_time"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.EndTime, err = f.timeOfDay("end_time"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}

	ws, err := s.svc.CreateSchedule(ctx, in)
	if err != nil {
		return nil, toStatus(log, "schedule create refused", err,
			slog.String("employee_id", in.EmployeeID.String()),
			slog.String("weekday", in.Weekday.String()),
		)
	}

	log.Info(
		"schedule created",
		slog.String("schedule_id", ws.ID.String()),
		slog.String("employee_id", ws.EmployeeID.String()),
		slog.String("weekday", ws.Weekday.String()),
	)
	return single("schedule", scheduleMessage(ws)), nil
}

func (s *SchedulesServer) ListSchedules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListSchedules"))

	employeeID, err := readFields(req).id("employee_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	list, err := s.svc.ListSchedules(ctx, employeeID)
	if err != nil {
		return nil, toStatus(log, "schedules list failed", err, slog.String("employee_id", employeeID.String()))
	}

	out := make([]*structpb.Value, 0, len(list))
	for _, ws := range list {
		out = append(out, structpb.NewStructValue(scheduleMessage(ws)))
	}
	log.Debug("schedules listed", slog.String("employee_id", employeeID.String()), slog.Int("count", len(out)))
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"schedules": structpb.NewListValue(&structpb.ListValue{Values: out}),
	}}, nil
}

func (s *SchedulesServer) GetSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetSchedule"))

	scheduleID, err := readFields(req).id("schedule_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	ws, err := s.svc.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, toStatus(log, "schedule get failed", err, slog.String("schedule_id", scheduleID.String()))
	}
	return single("schedule", scheduleMessage(ws)), nil
}

func (s *SchedulesServer) UpdateSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "UpdateSchedule"))

	f := readFields(req)
	var (
		in  schedules.UpdateInput
		err error
	)
	if in.ScheduleID, err = f.id("schedule_id"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.StartTime, err = f.optionalTimeOfDay("start_time"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.EndTime, err = f.optionalTimeOfDay("end_time"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}

	ws, err := s.svc.UpdateSchedule(ctx, in)
	if err != nil {
		return nil, toStatus(log, "schedule update refused", err, slog.String("schedule_id", in.ScheduleID.String()))
	}

	log.Info("schedule updated", slog.String("schedule_id", ws.ID.String()))
	return single("schedule", scheduleMessage(ws)), nil
}

func (s *SchedulesServer) DeleteSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DeleteSchedule"))

	scheduleID, err := readFields(req).id("schedule_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if err := s.svc.DeleteSchedule(ctx, scheduleID); err != nil {
		return nil, toStatus(log, "schedule delete failed", err, slog.String("schedule_id", scheduleID.String()))
	}

	log.Info("schedule deleted", slog.String("schedule_id", scheduleID.String()))
	return &structpb.Struct{}, nil
}

func (s *SchedulesServer) AddBreak(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "AddBreak"))

	f := readFields(req)
	var (
		in  schedules.BreakInput
		err error
	)
	if in.ScheduleID, err = f.id("schedule_id"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.StartTime, err = f.timeOfDay("start_time"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.EndTime, err = f.timeOfDay("end_time"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}

	b, err := s.svc.AddBreak(ctx, in)
	if err != nil {
		return nil, toStatus(log, "break add refused", err, slog.String("schedule_id", in.ScheduleID.String()))
	}

	log.Info("break added", slog.String("break_id", b.ID.String()), slog.String("schedule_id", b.ScheduleID.String()))
	return &structpb.Struct{Fields: map[string]*structpb.Value{"break": breakMessage(b)}}, nil
}

func (s *SchedulesServer) DeleteBreak(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DeleteBreak"))

	breakID, err := readFields(req).id("break_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if err := s.svc.DeleteBreak(ctx, breakID); err != nil {
		return nil, toStatus(log, "break delete failed", err, slog.String("break_id", breakID.String()))
	}

	log.Info("break deleted", slog.String("break_id", breakID.String()))
	return &structpb.Struct{}, nil
}
