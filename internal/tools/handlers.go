package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/yclients-mcp/internal/availability"
	"github.com/wolfman30/yclients-mcp/internal/booking"
	"github.com/wolfman30/yclients-mcp/internal/resolver"
	"github.com/wolfman30/yclients-mcp/internal/validation"
	"github.com/wolfman30/yclients-mcp/internal/yclients"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

// Tool names.
const (
	BookAppointment   = "book_appointment"
	FindAvailableTime = "find_available_time"
	FindClient        = "find_client"
	GetClientBookings = "get_client_bookings"
	CancelBooking     = "cancel_booking"
	GetServicesList   = "get_services_list"
	GetStaffList      = "get_staff_list"
)

// Backend is the part of the YClients API the tools read directly.
type Backend interface {
	ListServices(ctx context.Context) ([]yclients.Service, error)
	ListStaff(ctx context.Context) ([]yclients.Staff, error)
	FindClientByPhone(ctx context.Context, phone string) (*yclients.Client, error)
	ListClientBookings(ctx context.Context, clientID int, dateFrom, dateTo string) ([]yclients.Booking, error)
	GetBooking(ctx context.Context, id int) (*yclients.Booking, error)
	CancelBooking(ctx context.Context, id int) error
}

// Booker runs the booking workflow.
type Booker interface {
	Book(ctx context.Context, req validation.BookAppointmentRequest) (*booking.Outcome, error)
}

// Searcher runs availability searches.
type Searcher interface {
	FindAvailableTime(ctx context.Context, req availability.SearchRequest) (*availability.SearchResult, error)
}

// Handlers implements the seven booking tools.
type Handlers struct {
	backend  Backend
	booker   Booker
	searcher Searcher
	logger   *logging.Logger
	loc      *time.Location
}

// NewHandlers builds the tool handlers. Record times are shown in loc.
func NewHandlers(backend Backend, booker Booker, searcher Searcher, logger *logging.Logger, loc *time.Location) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{backend: backend, booker: booker, searcher: searcher, logger: logger, loc: loc}
}

func (h *Handlers) fail(tool string, err error) Result {
	h.logger.Error("tool failed", "tool", tool, "error", err)
	return Result{Text: errorText(err), IsError: true}
}

func ok(text string) Result {
	return Result{Text: text}
}

// BookAppointment books a client for a service at a preferred date and time.
func (h *Handlers) BookAppointment(ctx context.Context, args json.RawMessage) Result {
	req, err := validation.Parse[validation.BookAppointmentRequest](args)
	if err != nil {
		return h.fail(BookAppointment, err)
	}
	out, err := h.booker.Book(ctx, req)
	if err != nil {
		return h.fail(BookAppointment, err)
	}
	return ok(renderBookingOutcome(out))
}

// FindAvailableTime lists free slots for a service in a date range.
func (h *Handlers) FindAvailableTime(ctx context.Context, args json.RawMessage) Result {
	req, err := validation.Parse[validation.FindAvailableTimeRequest](args)
	if err != nil {
		return h.fail(FindAvailableTime, err)
	}
	res, err := h.searcher.FindAvailableTime(ctx, availability.SearchRequest{
		ServiceQuery: req.ServiceName,
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
		StaffQuery:   req.MasterName,
	})
	if err != nil {
		return h.fail(FindAvailableTime, err)
	}
	return ok(renderSearch(res))
}

// FindClient looks a client up by phone.
func (h *Handlers) FindClient(ctx context.Context, args json.RawMessage) Result {
	req, err := validation.Parse[validation.FindClientRequest](args)
	if err != nil {
		return h.fail(FindClient, err)
	}
	phone, err := validation.NormalizePhone(req.Phone)
	if err != nil {
		return h.fail(FindClient, err)
	}
	client, err := h.backend.FindClientByPhone(ctx, phone)
	if err != nil {
		return h.fail(FindClient, err)
	}
	if client == nil {
		return ok("❌ Клиент с телефоном " + phone + " не найден")
	}
	return ok(renderClient(client))
}

// GetClientBookings lists a client's records, optionally within a date range.
func (h *Handlers) GetClientBookings(ctx context.Context, args json.RawMessage) Result {
	req, err := validation.Parse[validation.ClientBookingsRequest](args)
	if err != nil {
		return h.fail(GetClientBookings, err)
	}
	phone, err := validation.NormalizePhone(req.Phone)
	if err != nil {
		return h.fail(GetClientBookings, err)
	}
	client, err := h.backend.FindClientByPhone(ctx, phone)
	if err != nil {
		return h.fail(GetClientBookings, err)
	}
	if client == nil {
		return ok("❌ Клиент с телефоном " + phone + " не найден")
	}
	bookings, err := h.backend.ListClientBookings(ctx, client.ID, req.DateFrom, req.DateTo)
	if err != nil {
		return h.fail(GetClientBookings, err)
	}
	return ok(renderClientBookings(client, bookings, h.loc))
}

// CancelBooking reads a record, deletes it and reports what was cancelled.
func (h *Handlers) CancelBooking(ctx context.Context, args json.RawMessage) Result {
	req, err := validation.Parse[validation.CancelBookingRequest](args)
	if err != nil {
		return h.fail(CancelBooking, err)
	}
	rec, err := h.backend.GetBooking(ctx, req.BookingID)
	if err != nil {
		return h.fail(CancelBooking, err)
	}
	if err := h.backend.CancelBooking(ctx, req.BookingID); err != nil {
		return h.fail(CancelBooking, err)
	}
	if rec.ID == 0 {
		rec.ID = req.BookingID
	}
	h.logger.Info("booking cancelled", "booking_id", req.BookingID)
	return ok(renderCancelled(rec, h.loc))
}

// GetServicesList lists active services by category.
func (h *Handlers) GetServicesList(ctx context.Context, _ json.RawMessage) Result {
	services, err := h.backend.ListServices(ctx)
	if err != nil {
		return h.fail(GetServicesList, err)
	}
	return ok(renderServices(resolver.ActiveServices(services)))
}

// GetStaffList lists the salon's masters.
func (h *Handlers) GetStaffList(ctx context.Context, _ json.RawMessage) Result {
	staff, err := h.backend.ListStaff(ctx)
	if err != nil {
		return h.fail(GetStaffList, err)
	}
	return ok(renderStaff(staff))
}

var noArguments = Schema{Type: "object", Properties: map[string]Property{}, Required: []string{}}

// Tools returns the catalogue in the order it is published.
func (h *Handlers) Tools() []Tool {
	return []Tool{
		{
			Name:        BookAppointment,
			Description: "Записать клиента на услугу. Автоматически найдет или создаст клиента, найдет услугу по названию, проверит доступность времени",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"client_phone":   {Type: "string", Description: "Телефон клиента в формате +7XXXXXXXXXX"},
					"client_name":    {Type: "string", Description: "Имя клиента"},
					"service_name":   {Type: "string", Description: "Название услуги (например: \"стрижка\", \"окрашивание\", \"маникюр\")"},
					"preferred_date": {Type: "string", Format: "date", Description: "Желаемая дата в формате YYYY-MM-DD"},
					"preferred_time": {Type: "string", Description: "Желаемое время в формате HH:MM (например: \"15:00\")"},
					"master_name":    {Type: "string", Description: "Имя мастера (опционально)"},
					"comment":        {Type: "string", Description: "Комментарий к записи"},
				},
				Required: []string{"client_phone", "client_name", "service_name", "preferred_date", "preferred_time"},
			},
			Handler: h.BookAppointment,
		},
		{
			Name:        FindAvailableTime,
			Description: "Найти свободное время для записи на услугу",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"service_name": {Type: "string", Description: "Название услуги"},
					"date_from":    {Type: "string", Format: "date", Description: "Начальная дата поиска в формате YYYY-MM-DD"},
					"date_to":      {Type: "string", Format: "date", Description: "Конечная дата поиска в формате YYYY-MM-DD"},
					"master_name":  {Type: "string", Description: "Имя мастера (опционально)"},
				},
				Required: []string{"service_name", "date_from", "date_to"},
			},
			Handler: h.FindAvailableTime,
		},
		{
			Name:        FindClient,
			Description: "Найти клиента по телефону",
			InputSchema: Schema{
				Type:       "object",
				Properties: map[string]Property{"phone": {Type: "string", Description: "Телефон клиента"}},
				Required:   []string{"phone"},
			},
			Handler: h.FindClient,
		},
		{
			Name:        GetClientBookings,
			Description: "Получить записи клиента по телефону",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"phone":     {Type: "string", Description: "Телефон клиента"},
					"date_from": {Type: "string", Format: "date", Description: "Начальная дата поиска (необязательно)"},
					"date_to":   {Type: "string", Format: "date", Description: "Конечная дата поиска (необязательно)"},
				},
				Required: []string{"phone"},
			},
			Handler: h.GetClientBookings,
		},
		{
			Name:        CancelBooking,
			Description: "Отменить запись клиента",
			InputSchema: Schema{
				Type:       "object",
				Properties: map[string]Property{"booking_id": {Type: "integer", Description: "ID записи для отмены"}},
				Required:   []string{"booking_id"},
			},
			Handler: h.CancelBooking,
		},
		{
			Name:        GetServicesList,
			Description: "Получить список всех доступных услуг салона",
			InputSchema: noArguments,
			Handler:     h.GetServicesList,
		},
		{
			Name:        GetStaffList,
			Description: "Получить список всех мастеров салона",
			InputSchema: noArguments,
			Handler:     h.GetStaffList,
		},
	}
}
