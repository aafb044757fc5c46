package booking

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/yclients-mcp/internal/availability"
	"github.com/wolfman30/yclients-mcp/internal/resolver"
	"github.com/wolfman30/yclients-mcp/internal/validation"
	"github.com/wolfman30/yclients-mcp/internal/yclients"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

var bookingTracer = otel.Tracer("yclients.internal.booking")

// Gateway is the subset of the YClients API the orchestrator calls.
type Gateway interface {
	FindClientByPhone(ctx context.Context, phone string) (*yclients.Client, error)
	CreateClient(ctx context.Context, in yclients.NewClient) (*yclients.Client, error)
	ListServices(ctx context.Context) ([]yclients.Service, error)
	ListStaff(ctx context.Context) ([]yclients.Staff, error)
	CreateBooking(ctx context.Context, booking yclients.Booking) (*yclients.Booking, error)
}

// Searcher checks single slots and proposes alternatives.
type Searcher interface {
	CheckTimeAvailability(ctx context.Context, staffID, serviceID int, datetime string) bool
	FindAvailableTime(ctx context.Context, req availability.SearchRequest) (*availability.SearchResult, error)
}

// Status is the terminal state of a booking attempt.
type Status int

const (
	StatusBooked Status = iota
	StatusPastDate
	StatusServiceNotFound
	StatusServiceAmbiguous
	StatusStaffNotFound
	StatusStaffAmbiguous
	StatusNoEligibleStaff
	StatusSlotUnavailable
)

var statusNames = map[Status]string{
	StatusBooked:           "booked",
	StatusPastDate:         "past_date",
	StatusServiceNotFound:  "service_not_found",
	StatusServiceAmbiguous: "service_ambiguous",
	StatusStaffNotFound:    "staff_not_found",
	StatusStaffAmbiguous:   "staff_ambiguous",
	StatusNoEligibleStaff:  "no_eligible_staff",
	StatusSlotUnavailable:  "slot_unavailable",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Outcome describes how a booking attempt ended. Request carries the
// normalized phone. Alternatives (or AlternativesErr) is set only for
// StatusSlotUnavailable.
type Outcome struct {
	Status          Status
	Request         validation.BookAppointmentRequest
	Client          *yclients.Client
	ClientCreated   bool
	Service         yclients.Service
	Staff           yclients.Staff
	Datetime        string
	Booking         *yclients.Booking
	ActiveServices  []yclients.Service
	ServiceMatches  []yclients.Service
	Roster          []yclients.Staff
	StaffMatches    []yclients.Staff
	Alternatives    *availability.SearchResult
	AlternativesErr error
}

// Orchestrator books appointments from loosely specified requests.
type Orchestrator struct {
	gateway   Gateway
	searcher  Searcher
	companyID int
	logger    *logging.Logger
	now       func() time.Time
	loc       *time.Location
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used for the past-date check.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the salon's timezone. "Today" is computed there.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// NewOrchestrator wires the booking workflow.
func NewOrchestrator(gateway Gateway, searcher Searcher, companyID int, logger *logging.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		gateway:   gateway,
		searcher:  searcher,
		companyID: companyID,
		logger:    logger,
		now:       time.Now,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Book runs the booking workflow: client lookup-or-create, service and staff
// resolution, slot verification and record creation. Ambiguity, absence and
// conflicts end in an Outcome; backend and validation failures are returned
// as errors. A client created before a later failure is not rolled back.
func (o *Orchestrator) Book(ctx context.Context, req validation.BookAppointmentRequest) (*Outcome, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book_appointment")
	defer span.End()

	phone, err := validation.NormalizePhone(req.ClientPhone)
	if err != nil {
		return nil, err
	}
	req.ClientPhone = phone
	req.PreferredTime = validation.NormalizeClock(req.PreferredTime)
	out := &Outcome{Request: req}

	if !validation.ValidateFutureDate(req.PreferredDate, o.now().In(o.loc)) {
		out.Status = StatusPastDate
		return o.finish(span, out), nil
	}

	client, created, err := o.resolveClient(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out.Client, out.ClientCreated = client, created

	services, err := o.gateway.ListServices(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	active := resolver.ActiveServices(services)
	svcRes := resolver.ResolveService(active, req.ServiceName)
	switch svcRes.Kind {
	case resolver.NotFound:
		out.Status = StatusServiceNotFound
		out.ActiveServices = active
		return o.finish(span, out), nil
	case resolver.Ambiguous:
		out.Status = StatusServiceAmbiguous
		out.ServiceMatches = svcRes.Matches
		return o.finish(span, out), nil
	}
	out.Service = svcRes.Match

	roster, err := o.gateway.ListStaff(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if req.MasterName != "" {
		staffRes := resolver.ResolveStaff(roster, req.MasterName)
		switch staffRes.Kind {
		case resolver.NotFound:
			out.Status = StatusStaffNotFound
			out.Roster = roster
			return o.finish(span, out), nil
		case resolver.Ambiguous:
			out.Status = StatusStaffAmbiguous
			out.StaffMatches = staffRes.Matches
			return o.finish(span, out), nil
		}
		out.Staff = staffRes.Match
	} else {
		eligible := resolver.EligibleStaff(roster, out.Service.ID)
		if len(eligible) == 0 {
			out.Status = StatusNoEligibleStaff
			return o.finish(span, out), nil
		}
		out.Staff = eligible[0]
	}

	out.Datetime = validation.FormatDateTimeForBackend(req.PreferredDate, req.PreferredTime)
	if !o.searcher.CheckTimeAvailability(ctx, out.Staff.ID, out.Service.ID, out.Datetime) {
		out.Status = StatusSlotUnavailable
		out.Alternatives, out.AlternativesErr = o.searcher.FindAvailableTime(ctx, availability.SearchRequest{
			ServiceQuery: req.ServiceName,
			DateFrom:     req.PreferredDate,
			DateTo:       req.PreferredDate,
			StaffQuery:   out.Staff.Name,
		})
		if out.AlternativesErr != nil {
			o.logger.Warn("alternative slot search failed", "service", out.Service.Title, "staff_id", out.Staff.ID, "date", req.PreferredDate, "error", out.AlternativesErr)
		}
		return o.finish(span, out), nil
	}

	saveIfBusy := false
	booking, err := o.gateway.CreateBooking(ctx, yclients.Booking{
		CompanyID: o.companyID,
		StaffID:   out.Staff.ID,
		Services: []yclients.BookingService{{
			ID:          out.Service.ID,
			Title:       out.Service.Title,
			Cost:        out.Service.PriceMin,
			CostPerUnit: out.Service.PriceMin,
			FirstCost:   out.Service.PriceMin,
			Amount:      1,
			Discount:    0,
		}},
		Client: yclients.BookingClient{
			ID:    client.ID,
			Name:  client.Name,
			Phone: client.Phone,
			Email: client.Email,
		},
		Datetime:     out.Datetime,
		SeanceLength: out.Service.Duration,
		Comment:      req.Comment,
		SaveIfBusy:   &saveIfBusy,
	})
	if err != nil {
		span.RecordError(err)
		o.logger.Error("create booking failed", "client_id", client.ID, "staff_id", out.Staff.ID, "service_id", out.Service.ID, "datetime", out.Datetime, "error", err)
		return nil, err
	}
	out.Booking = booking
	out.Status = StatusBooked
	o.logger.Info("appointment booked", "booking_id", booking.ID, "client_id", client.ID, "staff_id", out.Staff.ID, "service_id", out.Service.ID, "datetime", out.Datetime)
	return o.finish(span, out), nil
}

func (o *Orchestrator) resolveClient(ctx context.Context, req validation.BookAppointmentRequest) (*yclients.Client, bool, error) {
	client, err := o.gateway.FindClientByPhone(ctx, req.ClientPhone)
	if err != nil {
		return nil, false, err
	}
	if client != nil {
		return client, false, nil
	}

	client, err = o.gateway.CreateClient(ctx, yclients.NewClient{
		Name:    req.ClientName,
		Phone:   req.ClientPhone,
		Comment: req.Comment,
	})
	if err != nil {
		return nil, false, err
	}
	o.logger.Info("client created", "client_id", client.ID)
	return client, true, nil
}

func (o *Orchestrator) finish(span trace.Span, out *Outcome) *Outcome {
	span.SetAttributes(attribute.String("booking.status", out.Status.String()))
	return out
}
