package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"schedula/booking/internal/service/availability"
	"schedula/booking/internal/service/booking"
	"schedula/booking/internal/service/schedules"
	"schedula/booking/internal/store"
)

// rejectionDetail describes a rejection in a form clients can branch on without parsing
// the status message.
func rejectionDetail(rej *availability.Rejection) *structpb.Struct {
	f := map[string]*structpb.Value{
		"reason":  stringValue(string(rej.Reason)),
		"message": stringValue(rej.Error()),
		"start":   timeValue(rej.Start),
		"end":     timeValue(rej.End),
		"weekday": stringValue(rej.Weekday.String()),
	}
	switch rej.Reason {
	case availability.ReasonBeforeWorkingHours, availability.ReasonAfterWorkingHours:
		f["boundary"] = stringValue(rej.Boundary.String())
	case availability.ReasonOverlapsBreak:
		f["break_start"] = stringValue(rej.BreakStart.String())
		f["break_end"] = stringValue(rej.BreakEnd.String())
	case availability.ReasonOverlapsVisit:
		if rej.Conflict != nil {
			f["conflict_visit_id"] = stringValue(rej.Conflict.ID.String())
			f["conflict_start"] = timeValue(rej.Conflict.StartAt)
			f["conflict_end"] = timeValue(rej.Conflict.EndAt)
		}
	}
	return &structpb.Struct{Fields: f}
}

// toStatus maps a service error to a gRPC status and logs it at the level its kind deserves.
func toStatus(log *slog.Logger, msg string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var rej *availability.Rejection
	if errors.As(err, &rej) {
		log.Info(msg, append(args, slog.String("reason", string(rej.Reason)))...)
		st := status.New(codes.FailedPrecondition, rej.Error())
		if detailed, dErr := st.WithDetails(rejectionDetail(rej)); dErr == nil {
			st = detailed
		}
		return st.Err()
	}

	var bvErr *booking.ValidationError
	var svErr *schedules.ValidationError
	switch {
	case errors.As(err, &bvErr), errors.As(err, &svErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info(msg, args...)
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, booking.ErrContention):
		log.Info(msg, args...)
		return status.Error(codes.Aborted, "Someone else is booking this employee right now. Try again.")
	case errors.Is(err, booking.ErrServiceInactive),
		errors.Is(err, booking.ErrNotReschedulable),
		errors.Is(err, booking.ErrInvalidStatusTransition),
		errors.Is(err, schedules.ErrBreakOverlap):
		log.Info(msg, args...)
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, store.ErrDuplicateSchedule):
		log.Info(msg, args...)
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(msg, args...)
		return status.Error(codes.AlreadyExists, "This request key was already used for a different visit. Try again.")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(msg, args...)
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		log.Info(msg, args...)
		return status.Error(codes.Canceled, "request canceled")
	}
	log.Error(msg, args...)
	return status.Error(codes.Internal, "internal error")
}
