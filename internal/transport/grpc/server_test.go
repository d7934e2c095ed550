package grpc

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"schedula/booking/internal/domain"
	"schedula/booking/internal/metrics"
	"schedula/booking/internal/service/availability"
	"schedula/booking/internal/service/booking"
	"schedula/booking/internal/service/schedules"
	"schedula/booking/internal/store/memory"
)

type harness struct {
	conn    *grpc.ClientConn
	metrics *metrics.Collector
}

func newHarness(t *testing.T) harness {
	t.Helper()

	st := memory.New(time.Second)
	st.PutEmployee(domain.Employee{ID: uuid.MustParse(testEmployee), FullName: "Ada", IsActive: true})
	st.PutCustomer(domain.Customer{ID: uuid.MustParse(testCustomer), FullName: "Grace"})
	st.PutService(domain.Service{
		ID:              uuid.MustParse(testService),
		Name:            "Haircut",
		DurationMinutes: 30,
		Price:           decimal.RequireFromString("45.00"),
		IsActive:        true,
	})

	m := metrics.NewCollector(prometheus.NewRegistry())
	log := slog.Default()

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		DefaultRequestTimeoutInterceptor(5*time.Second),
		MetricsInterceptor(m),
	))
	RegisterBookingServer(s, NewBookingServer(booking.NewService(st, availability.NewEngine(time.UTC), m), log))
	RegisterSchedulesServer(s, NewSchedulesServer(schedules.NewService(st), log))

	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return harness{conn: conn, metrics: m}
}

func (h harness) call(ctx context.Context, t *testing.T, method string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	resp := new(structpb.Struct)
	err := h.conn.Invoke(ctx, method, request(t, req), resp)
	return resp, err
}

func TestServer_BookingRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.call(ctx, t, "/schedula.booking.v1.Schedules/CreateSchedule", map[string]any{
		"employee_id": testEmployee,
		"weekday":     "monday",
		"start_time":  "09:00",
		"end_time":    "17:00",
	})
	if err != nil {
		t.Fatalf("CreateSchedule error: %v", err)
	}
	scheduleID := resp.GetFields()["schedule"].GetStructValue().GetFields()["id"].GetStringValue()

	if _, err := h.call(ctx, t, "/schedula.booking.v1.Schedules/AddBreak", map[string]any{
		"schedule_id": scheduleID,
		"start_time":  "12:00",
		"end_time":    "13:00",
	}); err != nil {
		t.Fatalf("AddBreak error: %v", err)
	}

	book := map[string]any{
		"employee_id": testEmployee,
		"customer_id": testCustomer,
		"service_id":  testService,
		"start":       "2024-01-15T10:00:00Z",
	}
	keyed := metadata.AppendToOutgoingContext(ctx, "idempotency-key", "first")

	first, err := h.call(keyed, t, "/schedula.booking.v1.Booking/BookVisit", book)
	if err != nil {
		t.Fatalf("BookVisit error: %v", err)
	}
	replay, err := h.call(keyed, t, "/schedula.booking.v1.Booking/BookVisit", book)
	if err != nil {
		t.Fatalf("BookVisit replay error: %v", err)
	}
	firstID := first.GetFields()["visit"].GetStructValue().GetFields()["id"].GetStringValue()
	replayID := replay.GetFields()["visit"].GetStructValue().GetFields()["id"].GetStringValue()
	if firstID != replayID {
		t.Fatalf("replay id = %q, want %q", replayID, firstID)
	}

	book["start"] = "2024-01-15T10:15:00Z"
	_, err = h.call(ctx, t, "/schedula.booking.v1.Booking/BookVisit", book)
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("overlapping BookVisit code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}
	if msg := status.Convert(err).Message(); msg != "time slot conflicts with existing visit (10:00-10:30)" {
		t.Fatalf("message = %q", msg)
	}

	book["start"] = "2024-01-15T10:30:00Z"
	if _, err := h.call(ctx, t, "/schedula.booking.v1.Booking/BookVisit", book); err != nil {
		t.Fatalf("back-to-back BookVisit error: %v", err)
	}

	check, err := h.call(ctx, t, "/schedula.booking.v1.Booking/CheckSlot", map[string]any{
		"employee_id":      testEmployee,
		"start":            "2024-01-15T12:30:00Z",
		"duration_minutes": 30,
	})
	if err != nil {
		t.Fatalf("CheckSlot error: %v", err)
	}
	if check.GetFields()["available"].GetBoolValue() {
		t.Fatalf("slot inside break reported available")
	}

	list, err := h.call(ctx, t, "/schedula.booking.v1.Booking/ListVisits", map[string]any{
		"employee_id":  testEmployee,
		"window_start": "2024-01-15T00:00:00Z",
		"window_end":   "2024-01-16T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("ListVisits error: %v", err)
	}
	if n := len(list.GetFields()["visits"].GetListValue().GetValues()); n != 2 {
		t.Fatalf("visits = %d, want 2", n)
	}

	bookOK := testutil.ToFloat64(h.metrics.GRPCRequestsTotal.WithLabelValues("/schedula.booking.v1.Booking/BookVisit", "OK"))
	if bookOK != 3 {
		t.Fatalf("BookVisit OK count = %v, want 3", bookOK)
	}
	rejected := testutil.ToFloat64(h.metrics.GRPCRequestsTotal.WithLabelValues("/schedula.booking.v1.Booking/BookVisit", "FailedPrecondition"))
	if rejected != 1 {
		t.Fatalf("BookVisit FailedPrecondition count = %v, want 1", rejected)
	}
}

func TestServer_CancelledVisitFreesSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.call(ctx, t, "/schedula.booking.v1.Schedules/CreateSchedule", map[string]any{
		"employee_id": testEmployee,
		"weekday":     "monday",
		"start_time":  "09:00",
		"end_time":    "17:00",
	}); err != nil {
		t.Fatalf("CreateSchedule error: %v", err)
	}

	book := map[string]any{
		"employee_id": testEmployee,
		"customer_id": testCustomer,
		"service_id":  testService,
		"start":       "2024-01-15T14:00:00Z",
	}
	resp, err := h.call(ctx, t, "/schedula.booking.v1.Booking/BookVisit", book)
	if err != nil {
		t.Fatalf("BookVisit error: %v", err)
	}
	visitID := resp.GetFields()["visit"].GetStructValue().GetFields()["id"].GetStringValue()

	if _, err := h.call(ctx, t, "/schedula.booking.v1.Booking/UpdateVisitStatus", map[string]any{
		"visit_id": visitID,
		"status":   "cancelled",
	}); err != nil {
		t.Fatalf("UpdateVisitStatus error: %v", err)
	}

	_, err = h.call(ctx, t, "/schedula.booking.v1.Booking/RescheduleVisit", map[string]any{
		"visit_id": visitID,
		"start":    "2024-01-15T15:00:00Z",
	})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("reschedule cancelled code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}

	if _, err := h.call(ctx, t, "/schedula.booking.v1.Booking/BookVisit", book); err != nil {
		t.Fatalf("BookVisit into freed slot error: %v", err)
	}
}
