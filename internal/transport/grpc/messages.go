package grpc

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"schedula/booking/internal/domain"
)

// Requests and responses are google.protobuf.Struct documents, so clients only need the
// well-known types to talk to these services.

type unaryMethod func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(service, method string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func invalidArgument(format string, args ...any) error {
	return status.Error(codes.InvalidArgument, fmt.Sprintf(format, args...))
}

// fields reads typed values out of a request document.
type fields struct {
	m map[string]*structpb.Value
}

func readFields(req *structpb.Struct) fields {
	return fields{m: req.GetFields()}
}

func (f fields) has(name string) bool {
	v, ok := f.m[name]
	if !ok {
		return false
	}
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	return !isNull
}

func (f fields) str(name string) (string, error) {
	if !f.has(name) {
		return "", nil
	}
	sv, ok := f.m[name].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", invalidArgument("%s must be a string", name)
	}
	return sv.StringValue, nil
}

func (f fields) optionalStr(name string) (*string, error) {
	if !f.has(name) {
		return nil, nil
	}
	s, err := f.str(name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (f fields) id(name string) (uuid.UUID, error) {
	s, err := f.str(name)
	if err != nil {
		return uuid.Nil, err
	}
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, invalidArgument("%s is required", name)
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, invalidArgument("%s must be a UUID", name)
	}
	return id, nil
}

func (f fields) optionalUUID(name string) (*uuid.UUID, error) {
	if !f.has(name) {
		return nil, nil
	}
	id, err := f.id(name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// timestamp parses an RFC 3339 value. Values without an offset are rejected.
func (f fields) timestamp(name string) (time.Time, error) {
	s, err := f.str(name)
	if err != nil {
		return time.Time{}, err
	}
	if strings.TrimSpace(s) == "" {
		return time.Time{}, invalidArgument("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalidArgument("%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}

func (f fields) optionalTimestamp(name string) (*time.Time, error) {
	if !f.has(name) {
		return nil, nil
	}
	t, err := f.timestamp(name)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (f fields) integer(name string) (int, error) {
	if !f.has(name) {
		return 0, nil
	}
	nv, ok := f.m[name].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, invalidArgument("%s must be a number", name)
	}
	n := nv.NumberValue
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, invalidArgument("%s is out of range", name)
	}
	if n != float64(int(n)) {
		return 0, invalidArgument("%s must be an integer", name)
	}
	return int(n), nil
}

func (f fields) timeOfDay(name string) (domain.TimeOfDay, error) {
	s, err := f.str(name)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(s) == "" {
		return 0, invalidArgument("%s is required", name)
	}
	t, err := domain.ParseTimeOfDay(s)
	if err != nil {
		return 0, invalidArgument("%s must be HH:MM or HH:MM:SS", name)
	}
	return t, nil
}

func (f fields) optionalTimeOfDay(name string) (*domain.TimeOfDay, error) {
	if !f.has(name) {
		return nil, nil
	}
	t, err := f.timeOfDay(name)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (f fields) weekday(name string) (domain.Weekday, error) {
	s, err := f.str(name)
	if err != nil {
		return 0, err
	}
	wd, err := domain.ParseWeekday(s)
	if err != nil {
		return 0, invalidArgument("%s must be a weekday name", name)
	}
	return wd, nil
}

func stringValue(s string) *structpb.Value {
	return structpb.NewStringValue(s)
}

func timeValue(t time.Time) *structpb.Value {
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339))
}

func visitMessage(v domain.Visit) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          stringValue(v.ID.String()),
		"employee_id": stringValue(v.EmployeeID.String()),
		"customer_id": stringValue(v.CustomerID.String()),
		"service_id":  stringValue(v.ServiceID.String()),
		"start":       timeValue(v.StartAt),
		"end":         timeValue(v.EndAt),
		"price":       stringValue(v.Price.StringFixed(2)),
		"comment":     stringValue(v.Comment),
		"status":      stringValue(string(v.Status)),
		"created_at":  timeValue(v.CreatedAt),
		"updated_at":  timeValue(v.UpdatedAt),
	}}
}

func breakMessage(b domain.Break) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          stringValue(b.ID.String()),
		"schedule_id": stringValue(b.ScheduleID.String()),
		"start_time":  stringValue(b.StartTime.String()),
		"end_time":    stringValue(b.EndTime.String()),
	}})
}

func scheduleMessage(ws domain.WeeklySchedule) *structpb.Struct {
	breaks := make([]*structpb.Value, 0, len(ws.Breaks))
	for _, b := range ws.Breaks {
		breaks = append(breaks, breakMessage(b))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          stringValue(ws.ID.String()),
		"employee_id": stringValue(ws.EmployeeID.String()),
		"weekday":     stringValue(ws.Weekday.String()),
		"start_time":  stringValue(ws.StartTime.String()),
		"end_time":    stringValue(ws.EndTime.String()),
		"breaks":      structpb.NewListValue(&structpb.ListValue{Values: breaks}),
	}}
}

func single(name string, msg *structpb.Struct) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{name: structpb.NewStructValue(msg)}}
}
