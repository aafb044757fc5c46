package yclientstest

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/yclients-mcp/internal/yclients"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

func TestBackend_BookingConsumesSlot(t *testing.T) {
	b := New(7, "token")
	b.AddStaff(yclients.Staff{ID: 1, Name: "Ольга"})
	b.SetSlots(1, "2026-03-20", "10:00", "15:00")
	client := yclients.NewAPIClient(b.Serve(t), "token", 7, logging.Default())
	ctx := context.Background()

	require.True(t, client.IsSlotAvailable(ctx, 1, 101, "2026-03-20T15:00:00"))

	saveIfBusy := false
	created, err := client.CreateBooking(ctx, yclients.Booking{StaffID: 1, Datetime: "2026-03-20T15:00:00", SaveIfBusy: &saveIfBusy})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, client.IsSlotAvailable(ctx, 1, 101, "2026-03-20T15:00:00"))

	_, err = client.CreateBooking(ctx, yclients.Booking{StaffID: 1, Datetime: "2026-03-20T15:00:00", SaveIfBusy: &saveIfBusy})
	var apiErr *yclients.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "Выбранное время уже занято", apiErr.Message)
}

func TestBackend_RejectsWrongToken(t *testing.T) {
	b := New(7, "token")
	client := yclients.NewAPIClient(b.Serve(t), "other", 7, logging.Default())

	_, err := client.ListServices(context.Background())
	var apiErr *yclients.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestBackend_FailPathAndRequests(t *testing.T) {
	b := New(7, "")
	b.AddStaff(yclients.Staff{ID: 1, Name: "Ольга"})
	b.FailPath("/schedule/2026-03-21", http.StatusInternalServerError)
	client := yclients.NewAPIClient(b.Serve(t), "", 7, logging.Default())
	ctx := context.Background()

	_, err := client.GetAvailability(ctx, 1, 1, "2026-03-20")
	require.NoError(t, err)
	_, err = client.GetAvailability(ctx, 1, 1, "2026-03-21")
	require.Error(t, err)

	assert.Equal(t, 2, b.CountRequests("GET /company/7/staff/1/schedule/"))
}

func TestBackend_CancelRemovesRecord(t *testing.T) {
	b := New(7, "")
	id := b.AddBooking(yclients.Booking{StaffID: 1, Datetime: "2026-03-20T10:00:00"})
	client := yclients.NewAPIClient(b.Serve(t), "", 7, logging.Default())
	ctx := context.Background()

	got, err := client.GetBooking(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, got.CompanyID)

	require.NoError(t, client.CancelBooking(ctx, id))
	assert.Empty(t, b.Bookings())

	_, err = client.GetBooking(ctx, id)
	var apiErr *yclients.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.NotFound())
}

func TestNewDemo(t *testing.T) {
	from := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	b := NewDemo(7, "", from)
	client := yclients.NewAPIClient(b.Serve(t), "", 7, logging.Default())

	staff, err := client.ListStaff(context.Background())
	require.NoError(t, err)
	assert.Len(t, staff, 3)
	assert.True(t, client.IsSlotAvailable(context.Background(), 2, 104, "2026-03-22T14:00:00"))
	assert.False(t, client.IsSlotAvailable(context.Background(), 2, 104, "2026-03-23T14:00:00"))
}
