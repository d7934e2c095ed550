package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"schedula/booking/internal/domain"
	"schedula/booking/internal/service/availability"
	"schedula/booking/internal/service/booking"
)

const BookingServiceName = "schedula.booking.v1.Booking"

type BookingServer struct {
	svc bookingService
	log *slog.Logger
}

type bookingService interface {
	BookVisit(ctx context.Context, in booking.BookInput) (domain.Visit, error)
	RescheduleVisit(ctx context.Context, in booking.RescheduleInput) (domain.Visit, error)
	UpdateStatus(ctx context.Context, visitID uuid.UUID, status domain.VisitStatus) (domain.Visit, error)
	GetVisit(ctx context.Context, visitID uuid.UUID) (domain.Visit, error)
	ListVisits(ctx context.Context, employeeID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Visit, error)
	DeleteVisit(ctx context.Context, visitID uuid.UUID) error
	CheckSlot(ctx context.Context, in booking.CheckInput) (*availability.Rejection, error)
}

type bookingHandler interface {
	BookVisit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RescheduleVisit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateVisitStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetVisit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListVisits(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteVisit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingServiceName,
	HandlerType: (*bookingHandler)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(BookingServiceName, "BookVisit", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(bookingHandler).BookVisit(ctx, req)
		}),
		unaryHandler(BookingServiceName, "RescheduleVisit", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(bookingHandler).RescheduleVisit(ctx, req)
		}),
		unaryHandler(BookingServiceName, "UpdateVisitStatus", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(bookingHandler).UpdateVisitStatus(ctx, req)
		}),
		unaryHandler(BookingServiceName, "GetVisit", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(bookingHandler).GetVisit(ctx, req)
		}),
		unaryHandler(BookingServiceName, "ListVisits", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(bookingHandler).ListVisits(ctx, req)
		}),
		unaryHandler(BookingServiceName, "DeleteVisit", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(bookingHandler).DeleteVisit(ctx, req)
		}),
		unaryHandler(BookingServiceName, "CheckSlot", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(bookingHandler).CheckSlot(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "schedula/booking/v1/booking.proto",
}

func NewBookingServer(svc bookingService, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.booking")),
	}
}

func RegisterBookingServer(s grpc.ServiceRegistrar, srv *BookingServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *BookingServer) BookVisit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "BookVisit"))

	f := readFields(req)
	employeeID, err := f.id("employee_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	customerID, err := f.id("customer_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	serviceID, err := f.id("service_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	start, err := f.timestamp("start")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	comment, err := f.str("comment")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}

	visit, err := s.svc.BookVisit(ctx, booking.BookInput{
		EmployeeID:     employeeID,
		CustomerID:     customerID,
		ServiceID:      serviceID,
		Start:          start,
		Comment:        comment,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, toStatus(log, "visit booking refused", err,
			slog.String("employee_id", employeeID.String()),
			slog.Time("start", start),
		)
	}

	log.Info(
		"visit booked",
		slog.String("visit_id", visit.ID.String()),
		slog.String("employee_id", visit.EmployeeID.String()),
		slog.Time("start", visit.StartAt),
		slog.Time("end", visit.EndAt),
	)
	return single("visit", visitMessage(visit)), nil
}

func (s *BookingServer) RescheduleVisit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "RescheduleVisit"))

	f := readFields(req)
	var (
		in  booking.RescheduleInput
		err error
	)
	if in.VisitID, err = f.id("visit_id"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.Start, err = f.optionalTimestamp("start"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.EmployeeID, err = f.optionalUUID("employee_id"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.ServiceID, err = f.optionalUUID("service_id"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.CustomerID, err = f.optionalUUID("customer_id"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.Comment, err = f.optionalStr("comment"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}

	visit, err := s.svc.RescheduleVisit(ctx, in)
	if err != nil {
		return nil, toStatus(log, "visit reschedule refused", err, slog.String("visit_id", in.VisitID.String()))
	}

	log.Info(
		"visit rescheduled",
		slog.String("visit_id", visit.ID.String()),
		slog.String("employee_id", visit.EmployeeID.String()),
		slog.Time("start", visit.StartAt),
		slog.Time("end", visit.EndAt),
	)
	return single("visit", visitMessage(visit)), nil
}

func (s *BookingServer) UpdateVisitStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "UpdateVisitStatus"))

	f := readFields(req)
	visitID, err := f.id("visit_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	raw, err := f.str("status")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	st, err := domain.ParseVisitStatus(raw)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_status"), slog.String("status", raw))
		return nil, invalidArgument("status must be one of scheduled, completed, cancelled")
	}

	visit, err := s.svc.UpdateStatus(ctx, visitID, st)
	if err != nil {
		return nil, toStatus(log, "visit status update refused", err, slog.String("visit_id", visitID.String()))
	}

	log.Info("visit status updated", slog.String("visit_id", visit.ID.String()), slog.String("status", string(visit.Status)))
	return single("visit", visitMessage(visit)), nil
}

func (s *BookingServer) GetVisit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetVisit"))

	visitID, err := readFields(req).id("visit_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	visit, err := s.svc.GetVisit(ctx, visitID)
	if err != nil {
		return nil, toStatus(log, "visit get failed", err, slog.String("visit_id", visitID.String()))
	}
	return single("visit", visitMessage(visit)), nil
}

func (s *BookingServer) ListVisits(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListVisits"))

	f := readFields(req)
	employeeID, err := f.id("employee_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	windowStart, err := f.timestamp("window_start")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	windowEnd, err := f.timestamp("window_end")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}

	visits, err := s.svc.ListVisits(ctx, employeeID, windowStart, windowEnd)
	if err != nil {
		return nil, toStatus(log, "visits list failed", err, slog.String("employee_id", employeeID.String()))
	}

	out := make([]*structpb.Value, 0, len(visits))
	for _, v := range visits {
		out = append(out, structpb.NewStructValue(visitMessage(v)))
	}

	log.Debug(
		"visits listed",
		slog.String("employee_id", employeeID.String()),
		slog.Int("count", len(out)),
		slog.Time("window_start", windowStart),
		slog.Time("window_end", windowEnd),
	)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"visits": structpb.NewListValue(&structpb.ListValue{Values: out}),
	}}, nil
}

func (s *BookingServer) DeleteVisit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DeleteVisit"))

	visitID, err := readFields(req).id("visit_id")
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if err := s.svc.DeleteVisit(ctx, visitID); err != nil {
		return nil, toStatus(log, "visit delete failed", err, slog.String("visit_id", visitID.String()))
	}

	log.Info("visit deleted", slog.String("visit_id", visitID.String()))
	return &structpb.Struct{}, nil
}

// CheckSlot reports a rejection in the response body, not as an error status.
func (s *BookingServer) CheckSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckSlot"))

	f := readFields(req)
	var (
		in  booking.CheckInput
		err error
	)
	if in.EmployeeID, err = f.id("employee_id"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.Start, err = f.timestamp("start"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.DurationMinutes, err = f.integer("duration_minutes"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}
	if in.ExcludeVisitID, err = f.optionalUUID("exclude_visit_id"); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}

	rej, err := s.svc.CheckSlot(ctx, in)
	if err != nil {
		return nil, toStatus(log, "slot check failed", err, slog.String("employee_id", in.EmployeeID.String()))
	}
	if rej != nil {
		log.Debug("slot unavailable", slog.String("employee_id", in.EmployeeID.String()), slog.String("reason", string(rej.Reason)))
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			"available": structpb.NewBoolValue(false),
			"rejection": structpb.NewStructValue(rejectionDetail(rej)),
		}}, nil
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"available": structpb.NewBoolValue(true),
	}}, nil
}
