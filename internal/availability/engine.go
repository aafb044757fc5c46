// Package availability finds free appointment slots for a service across a
// date range and staff roster, and checks single slots before booking.
package availability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/yclients-mcp/internal/resolver"
	"github.com/wolfman30/yclients-mcp/internal/validation"
	"github.com/wolfman30/yclients-mcp/internal/yclients"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

// Presentation caps for a search result.
const (
	MaxDays        = 7
	MaxSlotsPerDay = 10
)

// MaxRangeDays bounds the inclusive date_from..date_to window so one search
// cannot fan out into an unbounded number of backend requests.
const MaxRangeDays = 62

var availabilityTracer = otel.Tracer("yclients.internal.availability")

// Gateway is the subset of the YClients API the engine reads.
type Gateway interface {
	ListServices(ctx context.Context) ([]yclients.Service, error)
	ListStaff(ctx context.Context) ([]yclients.Staff, error)
	GetAvailability(ctx context.Context, staffID, serviceID int, date string) (*yclients.Schedule, error)
	IsSlotAvailable(ctx context.Context, staffID, serviceID int, datetime string) bool
}

// Engine runs availability searches.
type Engine struct {
	gateway     Gateway
	logger      *logging.Logger
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds the number of schedule fetches in flight. Values
// below 2 keep the search serial.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine builds an engine over gateway.
func NewEngine(gateway Gateway, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{gateway: gateway, logger: logger, concurrency: 1}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckTimeAvailability reports whether datetime is a free slot for the
// staff member and service. Backend failures count as unavailable.
func (e *Engine) CheckTimeAvailability(ctx context.Context, staffID, serviceID int, datetime string) bool {
	return e.gateway.IsSlotAvailable(ctx, staffID, serviceID, datetime)
}

// SearchRequest describes a range search. Dates are YYYY-MM-DD, inclusive.
type SearchRequest struct {
	ServiceQuery string
	DateFrom     string
	DateTo       string
	StaffQuery   string
}

// Status is the outcome of a range search.
type Status int

const (
	StatusFound Status = iota
	StatusServiceNotFound
	StatusServiceAmbiguous
	StatusStaffNotFound
	StatusStaffAmbiguous
	StatusNoEligibleStaff
	StatusNoSlots
)

// Slot is one free appointment time.
type Slot struct {
	Date      string
	Time      string
	StaffID   int
	StaffName string

	staffRank int
}

// DaySlots groups the slots of one date, ordered by time.
type DaySlots struct {
	Date  string
	Slots []Slot
}

// SearchResult is the outcome of FindAvailableTime. Only the fields relevant
// to Status are set: Days for StatusFound, ServiceMatches for service
// ambiguity, StaffMatches for staff ambiguity, ActiveServices and Roster for
// the not-found cases.
type SearchResult struct {
	Status         Status
	Request        SearchRequest
	Service        yclients.Service
	ServiceMatches []yclients.Service
	StaffMatches   []yclients.Staff
	ActiveServices []yclients.Service
	Roster         []yclients.Staff
	Days           []DaySlots
	TotalSlots     int
}

// FindAvailableTime resolves the service (and staff, when named), fetches
// every candidate's schedule for every day in range and returns the slots
// grouped by date, capped at MaxDays dates and MaxSlotsPerDay per date.
// A failed fetch for one staff member and day is skipped.
func (e *Engine) FindAvailableTime(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.find_available_time")
	defer span.End()
	span.SetAttributes(
		attribute.String("availability.date_from", req.DateFrom),
		attribute.String("availability.date_to", req.DateTo),
		attribute.Bool("availability.staff_named", req.StaffQuery != ""),
	)

	result := &SearchResult{Request: req}

	services, err := e.gateway.ListServices(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	active := resolver.ActiveServices(services)
	svcRes := resolver.ResolveService(active, req.ServiceQuery)
	switch svcRes.Kind {
	case resolver.NotFound:
		result.Status = StatusServiceNotFound
		result.ActiveServices = active
		return result, nil
	case resolver.Ambiguous:
		result.Status = StatusServiceAmbiguous
		result.ServiceMatches = svcRes.Matches
		return result, nil
	}
	result.Service = svcRes.Match

	roster, err := e.gateway.ListStaff(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var candidates []yclients.Staff
	if req.StaffQuery != "" {
		staffRes := resolver.ResolveStaff(roster, req.StaffQuery)
		switch staffRes.Kind {
		case resolver.NotFound:
			result.Status = StatusStaffNotFound
			result.Roster = roster
			return result, nil
		case resolver.Ambiguous:
			result.Status = StatusStaffAmbiguous
			result.StaffMatches = staffRes.Matches
			return result, nil
		}
		candidates = []yclients.Staff{staffRes.Match}
	} else {
		candidates = resolver.EligibleStaff(roster, result.Service.ID)
	}
	if len(candidates) == 0 {
		result.Status = StatusNoEligibleStaff
		return result, nil
	}

	days, err := dateRange(req.DateFrom, req.DateTo)
	if err != nil {
		return nil, err
	}

	slots, err := e.collect(ctx, result.Service.ID, candidates, days)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("availability.slots", len(slots)))

	result.TotalSlots = len(slots)
	if len(slots) == 0 {
		result.Status = StatusNoSlots
		return result, nil
	}
	result.Status = StatusFound
	result.Days = groupAndCap(slots)
	return result, nil
}

type fetchJob struct {
	staff     yclients.Staff
	staffRank int
	date      string
}

func (e *Engine) collect(ctx context.Context, serviceID int, candidates []yclients.Staff, days []string) ([]Slot, error) {
	jobs := make([]fetchJob, 0, len(candidates)*len(days))
	for rank, staff := range candidates {
		for _, day := range days {
			jobs = append(jobs, fetchJob{staff: staff, staffRank: rank, date: day})
		}
	}

	var (
		mu    sync.Mutex
		slots []Slot
	)
	fetch := func(ctx context.Context, job fetchJob) {
		schedule, err := e.gateway.GetAvailability(ctx, job.staff.ID, serviceID, job.date)
		if err != nil {
			e.logger.Warn("schedule fetch failed, skipping day",
				"staff_id", job.staff.ID,
				"service_id", serviceID,
				"date", job.date,
				"error", err,
			)
			return
		}
		if schedule == nil {
			return
		}
		found := make([]Slot, 0, len(schedule.Times))
		for _, t := range schedule.Times {
			found = append(found, Slot{
				Date:      job.date,
				Time:      t.Time,
				StaffID:   job.staff.ID,
				StaffName: job.staff.Name,
				staffRank: job.staffRank,
			})
		}
		mu.Lock()
		slots = append(slots, found...)
		mu.Unlock()
	}

	if e.concurrency < 2 {
		for _, job := range jobs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			fetch(ctx, job)
		}
		return slots, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fetch(gctx, job)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slots, nil
}

// groupAndCap orders slots by date, time and roster position, then keeps the
// first MaxDays dates and the first MaxSlotsPerDay slots of each.
func groupAndCap(slots []Slot) []DaySlots {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Date != slots[j].Date {
			return slots[i].Date < slots[j].Date
		}
		if slots[i].Time != slots[j].Time {
			return slots[i].Time < slots[j].Time
		}
		return slots[i].staffRank < slots[j].staffRank
	})

	var days []DaySlots
	for _, slot := range slots {
		if n := len(days); n == 0 || days[n-1].Date != slot.Date {
			if n == MaxDays {
				break
			}
			days = append(days, DaySlots{Date: slot.Date})
		}
		last := &days[len(days)-1]
		if len(last.Slots) < MaxSlotsPerDay {
			last.Slots = append(last.Slots, slot)
		}
	}
	return days
}

func dateRange(from, to string) ([]string, error) {
	start, err := time.Parse(validation.DateLayout, from)
	if err != nil {
		return nil, &validation.Error{Message: fmt.Sprintf("Некорректная дата: %s", from), Field: "date_from"}
	}
	end, err := time.Parse(validation.DateLayout, to)
	if err != nil {
		return nil, &validation.Error{Message: fmt.Sprintf("Некорректная дата: %s", to), Field: "date_to"}
	}

	if span := int(end.Sub(start).Hours()/24) + 1; span > MaxRangeDays {
		return nil, &validation.Error{
			Message: fmt.Sprintf("Период поиска не должен превышать %d дней", MaxRangeDays),
			Field:   "date_to",
		}
	}

	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(validation.DateLayout))
	}
	return days, nil
}
