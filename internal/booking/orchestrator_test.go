package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/yclients-mcp/internal/availability"
	"github.com/wolfman30/yclients-mcp/internal/validation"
	"github.com/wolfman30/yclients-mcp/internal/yclients"
	"github.com/wolfman30/yclients-mcp/internal/yclients/yclientstest"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

const companyID = 4242

var msk = time.FixedZone("MSK", 3*60*60)

type fixture struct {
	backend *yclientstest.Backend
	orch    *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := yclientstest.New(companyID, "token")
	backend.AddService(yclients.Service{ID: 1, Title: "Стрижка", CategoryID: 1, PriceMin: 1500, PriceMax: 2500, Duration: 60, Active: 1})
	backend.AddService(yclients.Service{ID: 2, Title: "Стрижка мужская", CategoryID: 1, PriceMin: 1200, PriceMax: 1200, Duration: 45, Active: 1})
	backend.AddService(yclients.Service{ID: 3, Title: "Окрашивание", CategoryID: 2, PriceMin: 4000, PriceMax: 9000, Duration: 120, Active: 1})
	backend.AddService(yclients.Service{ID: 4, Title: "Укладка", CategoryID: 2, PriceMin: 1000, PriceMax: 1000, Duration: 30, Active: 0})
	backend.AddStaff(yclients.Staff{ID: 10, Name: "Ирина Ковалёва", Services: []int{3}})
	backend.AddStaff(yclients.Staff{ID: 11, Name: "Ольга Смирнова", Services: []int{1, 2, 3}})
	backend.AddStaff(yclients.Staff{ID: 12, Name: "Ольга Иванова"})

	logger := logging.Default()
	client := yclients.NewAPIClient(backend.Serve(t), "token", companyID, logger)
	engine := availability.NewEngine(client, logger)
	now := func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, msk) }
	orch := NewOrchestrator(client, engine, companyID, logger, WithClock(now), WithLocation(msk))
	return &fixture{backend: backend, orch: orch}
}

func request() validation.BookAppointmentRequest {
	return validation.BookAppointmentRequest{
		ClientPhone:   "+79001234567",
		ClientName:    "Анна",
		ServiceName:   "стрижка",
		PreferredDate: "2026-03-20",
		PreferredTime: "15:00",
	}
}

func TestBook_HappyPathCreatesClientAndBooking(t *testing.T) {
	f := newFixture(t)
	f.backend.SetSlots(11, "2026-03-20", "10:00", "15:00")

	req := request()
	req.Comment = "первый визит"
	out, err := f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusBooked, out.Status)

	assert.True(t, out.ClientCreated)
	require.Len(t, f.backend.Clients(), 1)
	assert.Equal(t, "+79001234567", f.backend.Clients()[0].Phone)
	assert.Equal(t, "первый визит", f.backend.Clients()[0].Comment)

	assert.Equal(t, "Стрижка", out.Service.Title, "exact match wins over the longer title")
	assert.Equal(t, "Ольга Смирнова", out.Staff.Name, "first eligible staff in roster order")

	bookings := f.backend.Bookings()
	require.Len(t, bookings, 1)
	b := bookings[0]
	assert.Equal(t, out.Booking.ID, b.ID)
	assert.Equal(t, companyID, b.CompanyID)
	assert.Equal(t, 11, b.StaffID)
	assert.Equal(t, "2026-03-20T15:00:00", b.Datetime)
	assert.Equal(t, 60, b.SeanceLength)
	assert.Equal(t, "первый визит", b.Comment)
	require.NotNil(t, b.SaveIfBusy)
	assert.False(t, *b.SaveIfBusy)
	require.Len(t, b.Services, 1)
	line := b.Services[0]
	assert.Equal(t, 1, line.ID)
	assert.Equal(t, 1500.0, line.Cost)
	assert.Equal(t, 1500.0, line.CostPerUnit)
	assert.Equal(t, 1500.0, line.FirstCost)
	assert.Equal(t, 1, line.Amount)
	assert.Zero(t, line.Discount)
	assert.Equal(t, out.Client.ID, b.Client.ID)
}

func TestBook_ExistingClientIsReused(t *testing.T) {
	f := newFixture(t)
	f.backend.AddClient(yclients.Client{ID: 77, Name: "Анна Петрова", Phone: "+79001234567"})
	f.backend.SetSlots(11, "2026-03-20", "15:00")

	out, err := f.orch.Book(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, StatusBooked, out.Status)
	assert.False(t, out.ClientCreated)
	assert.Equal(t, 77, out.Client.ID)
	assert.Len(t, f.backend.Clients(), 1)
	assert.Zero(t, f.backend.CountRequests("POST /company/4242/clients/"))
}

func TestBook_UnpaddedTimeMatchesSlot(t *testing.T) {
	f := newFixture(t)
	f.backend.SetSlots(11, "2026-03-20", "09:00")

	req := request()
	req.PreferredTime = "9:00"
	out, err := f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, out.Status)
	assert.Equal(t, "2026-03-20T09:00:00", out.Datetime)
}

func TestBook_PastDateStopsBeforeBackend(t *testing.T) {
	f := newFixture(t)

	req := request()
	req.PreferredDate = "2026-03-14"
	out, err := f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusPastDate, out.Status)
	assert.Empty(t, f.backend.Requests())
}

func TestBook_TodayIsAllowed(t *testing.T) {
	f := newFixture(t)
	f.backend.SetSlots(11, "2026-03-15", "18:00")

	req := request()
	req.PreferredDate = "2026-03-15"
	req.PreferredTime = "18:00"
	out, err := f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, out.Status)
}

func TestBook_ServiceResolution(t *testing.T) {
	f := newFixture(t)

	req := request()
	req.ServiceName = "маникюр"
	out, err := f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusServiceNotFound, out.Status)
	assert.Len(t, out.ActiveServices, 3)

	req.ServiceName = "стрижк"
	out, err = f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusServiceAmbiguous, out.Status)
	assert.Len(t, out.ServiceMatches, 2)

	req.ServiceName = "укладка"
	out, err = f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusServiceNotFound, out.Status, "inactive services cannot be booked")

	assert.Empty(t, f.backend.Bookings())
	// The client is resolved first, so it exists even though nothing was booked.
	assert.Len(t, f.backend.Clients(), 1)
}

func TestBook_StaffResolution(t *testing.T) {
	f := newFixture(t)
	f.backend.SetSlots(12, "2026-03-20", "15:00")

	req := request()
	req.MasterName = "Ольга"
	out, err := f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusStaffAmbiguous, out.Status)
	assert.Len(t, out.StaffMatches, 2)

	req.MasterName = "Мария"
	out, err = f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusStaffNotFound, out.Status)
	assert.Len(t, out.Roster, 3)

	req.MasterName = "Иванова"
	out, err = f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusBooked, out.Status)
	assert.Equal(t, 12, out.Staff.ID)
}

func TestBook_NoEligibleStaff(t *testing.T) {
	backend := yclientstest.New(companyID, "")
	backend.AddService(yclients.Service{ID: 1, Title: "Массаж", PriceMin: 3000, Duration: 60, Active: 1})
	backend.AddStaff(yclients.Staff{ID: 10, Name: "Ирина", Services: []int{3}})
	client := yclients.NewAPIClient(backend.Serve(t), "", companyID, logging.Default())
	orch := NewOrchestrator(client, availability.NewEngine(client, nil), companyID, nil,
		WithClock(func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, msk) }), WithLocation(msk))

	req := request()
	req.ServiceName = "массаж"
	out, err := orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusNoEligibleStaff, out.Status)
}

func TestBook_ConflictOffersCappedAlternatives(t *testing.T) {
	f := newFixture(t)
	var times []string
	for m := 0; m < 14; m++ {
		times = append(times, fmt.Sprintf("%02d:%02d", 9+m/2, (m%2)*30))
	}
	f.backend.SetSlots(11, "2026-03-20", times...)
	f.backend.SetSlots(12, "2026-03-20", "15:00")

	req := request()
	req.PreferredTime = "16:30"
	out, err := f.orch.Book(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusSlotUnavailable, out.Status)
	require.NoError(t, out.AlternativesErr)
	require.NotNil(t, out.Alternatives)

	alt := out.Alternatives
	assert.Equal(t, availability.StatusFound, alt.Status)
	assert.Equal(t, "Ольга Смирнова", alt.Request.StaffQuery)
	assert.Equal(t, "2026-03-20", alt.Request.DateFrom)
	assert.Equal(t, "2026-03-20", alt.Request.DateTo)
	require.Len(t, alt.Days, 1)
	assert.Len(t, alt.Days[0].Slots, availability.MaxSlotsPerDay)
	for _, slot := range alt.Days[0].Slots {
		assert.Equal(t, 11, slot.StaffID, "alternatives are restricted to the chosen master")
	}
	assert.Empty(t, f.backend.Bookings())
}

func TestBook_BookingFailureKeepsCreatedClient(t *testing.T) {
	f := newFixture(t)
	f.backend.SetSlots(11, "2026-03-20", "15:00")
	f.backend.FailPath("/book/", http.StatusInternalServerError)

	_, err := f.orch.Book(context.Background(), request())
	var apiErr *yclients.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Внутренняя ошибка сервера YClients", apiErr.Message)
	assert.Len(t, f.backend.Clients(), 1)
}

func TestBook_SlotCheckFailureIsUnavailable(t *testing.T) {
	f := newFixture(t)
	f.backend.FailPath("/schedule/2026-03-20", http.StatusBadGateway)

	out, err := f.orch.Book(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, StatusSlotUnavailable, out.Status)
	require.NotNil(t, out.Alternatives)
	assert.Equal(t, availability.StatusNoSlots, out.Alternatives.Status)
	assert.Zero(t, f.backend.CountRequests("POST /company/4242/book/"))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "booked", StatusBooked.String())
	assert.Equal(t, "slot_unavailable", StatusSlotUnavailable.String())
	assert.Equal(t, "unknown", Status(99).String())
}
