package yclients

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/yclients-mcp/internal/validation"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewAPIClient(ts.URL, "secret-token", 42, logging.Default())
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data}); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestAPIClient_ListServices_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/company/42/services/" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Fatalf("Authorization = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.yclients.v2+json" {
			t.Fatalf("Accept = %q", got)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":1,"title":"Стрижка","category_id":3,"price_min":1500,"price_max":2500,"duration":60,"active":1,"staff":[7]}]}`))
	})

	services, err := client.ListServices(context.Background())
	if err != nil {
		t.Fatalf("ListServices() error = %v", err)
	}
	if len(services) != 1 {
		t.Fatalf("len(services) = %d, want 1", len(services))
	}
	svc := services[0]
	if svc.Title != "Стрижка" || svc.PriceMin != 1500 || svc.Duration != 60 || !svc.IsActive() {
		t.Fatalf("unexpected service %+v", svc)
	}
	if len(svc.Staff) != 1 || svc.Staff[0] != 7 {
		t.Fatalf("staff = %v", svc.Staff)
	}
}

func TestAPIClient_FindClientByPhone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/company/42/clients/" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("phone") == "+79001234567" {
			writeEnvelope(t, w, []Client{{ID: 5, Name: "Анна", Phone: "+79001234567"}, {ID: 6, Name: "Дубль"}})
			return
		}
		writeEnvelope(t, w, []Client{})
	})

	found, err := client.FindClientByPhone(context.Background(), "+79001234567")
	if err != nil {
		t.Fatalf("FindClientByPhone() error = %v", err)
	}
	if found == nil || found.ID != 5 {
		t.Fatalf("found = %+v, want first client", found)
	}

	missing, err := client.FindClientByPhone(context.Background(), "+79990000000")
	if err != nil {
		t.Fatalf("FindClientByPhone() error = %v", err)
	}
	if missing != nil {
		t.Fatalf("missing = %+v, want nil", missing)
	}
}

func TestAPIClient_CreateClient_NormalizesPhone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		var body NewClient
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Phone != "+79001234567" {
			t.Fatalf("phone = %s", body.Phone)
		}
		writeEnvelope(t, w, Client{ID: 77, Name: body.Name, Phone: body.Phone})
	})

	created, err := client.CreateClient(context.Background(), NewClient{Name: "Анна", Phone: "8 (900) 123-45-67"})
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if created.ID != 77 {
		t.Fatalf("ID = %d, want 77", created.ID)
	}
}

func TestAPIClient_CreateClient_InvalidPhoneIsNotWrapped(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.CreateClient(context.Background(), NewClient{Name: "Анна", Phone: "123"})
	var vErr *validation.Error
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *validation.Error", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("validation error must not be wrapped as APIError")
	}
	if called {
		t.Fatalf("backend must not be called for an invalid phone")
	}
}

func TestAPIClient_GetAvailabilityAndSlotCheck(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/company/42/staff/7/schedule/2026-03-20" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("service_id") != "1" {
			t.Fatalf("service_id = %s", r.URL.Query().Get("service_id"))
		}
		writeEnvelope(t, w, Schedule{
			StaffID: 7,
			Date:    "2026-03-20",
			Times: []ScheduleSlot{
				{Time: "10:00", SeanceLength: 3600, Datetime: "2026-03-20T10:00:00+03:00"},
				{Time: "15:00", SeanceLength: 3600, Datetime: "2026-03-20T15:00:00"},
			},
		})
	})

	ctx := context.Background()
	schedule, err := client.GetAvailability(ctx, 7, 1, "2026-03-20")
	if err != nil {
		t.Fatalf("GetAvailability() error = %v", err)
	}
	if len(schedule.Times) != 2 {
		t.Fatalf("len(times) = %d, want 2", len(schedule.Times))
	}

	if !client.IsSlotAvailable(ctx, 7, 1, "2026-03-20T15:00:00") {
		t.Fatalf("15:00 should be available")
	}
	if !client.IsSlotAvailable(ctx, 7, 1, "2026-03-20T10:00:00") {
		t.Fatalf("10:00 with offset should be available")
	}
	if client.IsSlotAvailable(ctx, 7, 1, "2026-03-20T11:00:00") {
		t.Fatalf("11:00 should not be available")
	}
}

func TestAPIClient_IsSlotAvailable_FailSafeFalse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if client.IsSlotAvailable(context.Background(), 7, 1, "2026-03-20T15:00:00") {
		t.Fatalf("backend failure must be reported as unavailable")
	}
}

func TestAPIClient_CreateBooking_SendsPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/company/42/book/" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Fatalf("content type = %s", r.Header.Get("Content-Type"))
		}
		var booking Booking
		if err := json.NewDecoder(r.Body).Decode(&booking); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if booking.SaveIfBusy == nil || *booking.SaveIfBusy {
			t.Fatalf("save_if_busy must be sent as false")
		}
		booking.ID = 9001
		writeEnvelope(t, w, booking)
	})

	saveIfBusy := false
	created, err := client.CreateBooking(context.Background(), Booking{
		CompanyID:  42,
		StaffID:    7,
		Services:   []BookingService{{ID: 1, Title: "Стрижка", Cost: 1500, CostPerUnit: 1500, FirstCost: 1500, Amount: 1}},
		Client:     BookingClient{ID: 5, Name: "Анна", Phone: "+79001234567"},
		Datetime:   "2026-03-20T15:00:00",
		SaveIfBusy: &saveIfBusy,
	})
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if created.ID != 9001 {
		t.Fatalf("ID = %d, want 9001", created.ID)
	}
}

func TestAPIClient_ListClientBookings_Query(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("client_id") != "5" {
			t.Fatalf("client_id = %s", q.Get("client_id"))
		}
		if q.Get("date_from") != "2026-03-01" {
			t.Fatalf("date_from = %s", q.Get("date_from"))
		}
		if _, ok := q["date_to"]; ok {
			t.Fatalf("date_to must be omitted when empty")
		}
		writeEnvelope(t, w, []Booking{{ID: 1}, {ID: 2}})
	})

	bookings, err := client.ListClientBookings(context.Background(), 5, "2026-03-01", "")
	if err != nil {
		t.Fatalf("ListClientBookings() error = %v", err)
	}
	if len(bookings) != 2 {
		t.Fatalf("len(bookings) = %d, want 2", len(bookings))
	}
}

func TestAPIClient_CancelBooking(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("method = %s, want DELETE", r.Method)
		}
		if r.URL.Path != "/company/42/records/123" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.CancelBooking(context.Background(), 123); err != nil {
		t.Fatalf("CancelBooking() error = %v", err)
	}
}

func TestAPIClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, "Ошибка авторизации. Проверьте Bearer token"},
		{"forbidden", http.StatusForbidden, `{}`, "Недостаточно прав доступа"},
		{"not found ignores meta", http.StatusNotFound, `{"success":false,"meta":{"message":"Record not found"}}`, "Ресурс не найден"},
		{"rate limited", http.StatusTooManyRequests, ``, "Превышен лимит запросов. Попробуйте позже"},
		{"server error", http.StatusInternalServerError, `oops`, "Внутренняя ошибка сервера YClients"},
		{"meta message", http.StatusUnprocessableEntity, `{"success":false,"meta":{"message":"Время занято"}}`, "Время занято"},
		{"other status", http.StatusBadGateway, `<html>`, "Ошибка при обращении к YClients API (HTTP 502)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.GetBooking(context.Background(), 1)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.Message != tt.wantMsg {
				t.Fatalf("message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
			if apiErr.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if string(apiErr.RawResponse) != tt.body {
				t.Fatalf("raw = %q, want %q", apiErr.RawResponse, tt.body)
			}
		})
	}
}

func TestAPIClient_SuccessFalseEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"data":null,"meta":{"message":"Компания не найдена"}}`))
	})

	_, err := client.ListStaff(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Message != "Компания не найдена" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestAPIClient_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(ts.Close)
	client := NewAPIClient(ts.URL, "token", 42, logging.Default(), WithTimeout(20*time.Millisecond))

	_, err := client.ListStaff(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 0 {
		t.Fatalf("status = %d, want 0", apiErr.StatusCode)
	}
}

func TestAPIClient_WithTimeoutLeavesCallerClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: 2 * time.Minute}
	client := NewAPIClient("http://backend.invalid", "token", 42, logging.Default(),
		WithHTTPClient(shared), WithTimeout(5*time.Second))

	if shared.Timeout != 2*time.Minute {
		t.Fatalf("caller client timeout = %s, want 2m0s", shared.Timeout)
	}
	if client.httpClient == shared {
		t.Fatal("client still points at the caller's http.Client")
	}
	if client.httpClient.Timeout != 5*time.Second {
		t.Fatalf("client timeout = %s, want 5s", client.httpClient.Timeout)
	}
}

func TestStaffCanPerform(t *testing.T) {
	open := Staff{ID: 1}
	if !open.CanPerform(99) {
		t.Fatalf("staff without a service list performs everything")
	}
	listed := Staff{ID: 2, Services: []int{1, 2}}
	if !listed.CanPerform(2) || listed.CanPerform(3) {
		t.Fatalf("listed staff eligibility wrong")
	}
	none := Staff{ID: 3, Services: []int{}}
	if none.CanPerform(1) {
		t.Fatalf("empty service list performs nothing")
	}
}
