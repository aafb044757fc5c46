// Package yclientstest provides an in-memory YClients API for tests and local
// demos. It speaks the same envelope, paths and status codes as the real API.
package yclientstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/yclients-mcp/internal/yclients"
)

// SlotLength is the seance length, in seconds, of slots added with SetSlots.
const SlotLength = 3600

type scheduleKey struct {
	staffID int
	date    string
}

// Backend is a fake YClients company.
type Backend struct {
	CompanyID int
	Token     string

	mu           sync.Mutex
	services     []yclients.Service
	staff        []yclients.Staff
	clients      []yclients.Client
	schedules    map[scheduleKey][]yclients.ScheduleSlot
	records      map[int]yclients.Booking
	failures     map[string]int
	requests     []string
	nextClientID int
	nextRecordID int
}

// New returns an empty company. An empty token disables the auth check.
func New(companyID int, token string) *Backend {
	return &Backend{
		CompanyID:    companyID,
		Token:        token,
		schedules:    make(map[scheduleKey][]yclients.ScheduleSlot),
		records:      make(map[int]yclients.Booking),
		failures:     make(map[string]int),
		nextClientID: 1000,
		nextRecordID: 5000,
	}
}

// AddService appends a service in roster order.
func (b *Backend) AddService(svc yclients.Service) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.services = append(b.services, svc)
}

// AddStaff appends a staff member in roster order.
func (b *Backend) AddStaff(s yclients.Staff) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.staff = append(b.staff, s)
}

// AddClient registers an existing client.
func (b *Backend) AddClient(c yclients.Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.ID == 0 {
		b.nextClientID++
		c.ID = b.nextClientID
	}
	b.clients = append(b.clients, c)
}

// AddBooking stores an existing record.
func (b *Backend) AddBooking(booking yclients.Booking) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if booking.ID == 0 {
		b.nextRecordID++
		booking.ID = b.nextRecordID
	}
	if booking.CompanyID == 0 {
		booking.CompanyID = b.CompanyID
	}
	b.records[booking.ID] = booking
	return booking.ID
}

// SetSlots replaces the free slots of staffID on date. Times are HH:MM.
func (b *Backend) SetSlots(staffID int, date string, times ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slots := make([]yclients.ScheduleSlot, 0, len(times))
	for _, t := range times {
		slots = append(slots, yclients.ScheduleSlot{
			Time:         t,
			SeanceLength: SlotLength,
			Datetime:     fmt.Sprintf("%sT%s:00", date, t),
		})
	}
	b.schedules[scheduleKey{staffID: staffID, date: date}] = slots
}

// FailPath makes every request whose path ends with suffix fail with status.
func (b *Backend) FailPath(suffix string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[suffix] = status
}

// Clients returns a copy of the client list.
func (b *Backend) Clients() []yclients.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]yclients.Client(nil), b.clients...)
}

// Bookings returns the stored records ordered by id.
func (b *Backend) Bookings() []yclients.Booking {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]yclients.Booking, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Requests returns "METHOD /path" for every request served so far.
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

// CountRequests counts served requests starting with prefix, e.g. "POST /company/1/book/".
func (b *Backend) CountRequests(prefix string) int {
	n := 0
	for _, req := range b.Requests() {
		if strings.HasPrefix(req, prefix) {
			n++
		}
	}
	return n
}

// Handler serves the fake API.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record, b.authorize, b.injectFailures)
	r.Route("/company/{companyID}", func(company chi.Router) {
		company.Use(b.checkCompany)
		company.Get("/services/", b.handleServices)
		company.Get("/staff/", b.handleStaff)
		company.Get("/clients/", b.handleFindClients)
		company.Post("/clients/", b.handleCreateClient)
		company.Get("/staff/{staffID}/schedule/{date}", b.handleSchedule)
		company.Post("/book/", b.handleBook)
		company.Get("/records/", b.handleListRecords)
		company.Get("/records/{recordID}", b.handleGetRecord)
		company.Delete("/records/{recordID}", b.handleDeleteRecord)
	})
	return r
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Token != "" && r.Header.Get("Authorization") != "Bearer "+b.Token {
			writeFailure(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		status := 0
		for suffix, code := range b.failures {
			if strings.HasSuffix(r.URL.Path, suffix) {
				status = code
				break
			}
		}
		b.mu.Unlock()
		if status != 0 {
			writeFailure(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) checkCompany(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "companyID") != strconv.Itoa(b.CompanyID) {
			writeFailure(w, http.StatusNotFound, "Company not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleServices(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeData(w, http.StatusOK, append([]yclients.Service{}, b.services...))
}

func (b *Backend) handleStaff(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeData(w, http.StatusOK, append([]yclients.Staff{}, b.staff...))
}

func (b *Backend) handleFindClients(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	b.mu.Lock()
	defer b.mu.Unlock()
	matches := []yclients.Client{}
	for _, c := range b.clients {
		if phone == "" || c.Phone == phone {
			matches = append(matches, c)
		}
	}
	writeData(w, http.StatusOK, matches)
}

func (b *Backend) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var in yclients.NewClient
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.Phone == "" {
		writeFailure(w, http.StatusUnprocessableEntity, "name and phone are required")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextClientID++
	c := yclients.Client{ID: b.nextClientID, Name: in.Name, Phone: in.Phone, Email: in.Email, Comment: in.Comment}
	b.clients = append(b.clients, c)
	writeData(w, http.StatusCreated, c)
}

func (b *Backend) handleSchedule(w http.ResponseWriter, r *http.Request) {
	staffID, err := strconv.Atoi(chi.URLParam(r, "staffID"))
	if err != nil {
		writeFailure(w, http.StatusNotFound, "Staff not found")
		return
	}
	date := chi.URLParam(r, "date")
	serviceID, _ := strconv.Atoi(r.URL.Query().Get("service_id"))

	b.mu.Lock()
	defer b.mu.Unlock()
	staff, ok := b.findStaff(staffID)
	if !ok {
		writeFailure(w, http.StatusNotFound, "Staff not found")
		return
	}
	times := []yclients.ScheduleSlot{}
	if serviceID == 0 || staff.CanPerform(serviceID) {
		times = append(times, b.schedules[scheduleKey{staffID: staffID, date: date}]...)
	}
	writeData(w, http.StatusOK, yclients.Schedule{StaffID: staffID, Date: date, Times: times})
}

func (b *Backend) handleBook(w http.ResponseWriter, r *http.Request) {
	var booking yclients.Booking
	if err := json.NewDecoder(r.Body).Decode(&booking); err != nil {
		writeFailure(w, http.StatusUnprocessableEntity, "invalid booking payload")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	date, _, _ := strings.Cut(booking.Datetime, "T")
	key := scheduleKey{staffID: booking.StaffID, date: date}
	slots := b.schedules[key]
	idx := -1
	for i, slot := range slots {
		if slot.Datetime == booking.Datetime {
			idx = i
			break
		}
	}
	if idx < 0 && (booking.SaveIfBusy == nil || !*booking.SaveIfBusy) {
		writeFailure(w, http.StatusUnprocessableEntity, "Выбранное время уже занято")
		return
	}
	if idx >= 0 {
		b.schedules[key] = append(slots[:idx:idx], slots[idx+1:]...)
	}

	b.nextRecordID++
	booking.ID = b.nextRecordID
	b.records[booking.ID] = booking
	writeData(w, http.StatusCreated, booking)
}

func (b *Backend) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID, _ := strconv.Atoi(q.Get("client_id"))
	from, to := q.Get("date_from"), q.Get("date_to")

	b.mu.Lock()
	defer b.mu.Unlock()
	out := []yclients.Booking{}
	for _, rec := range b.records {
		if clientID != 0 && rec.Client.ID != clientID {
			continue
		}
		day, _, _ := strings.Cut(rec.Datetime, "T")
		if from != "" && day < from {
			continue
		}
		if to != "" && day > to {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeData(w, http.StatusOK, out)
}

func (b *Backend) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.lookupRecord(r)
	if !ok {
		writeFailure(w, http.StatusNotFound, "Record not found")
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (b *Backend) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.lookupRecord(r)
	if !ok {
		writeFailure(w, http.StatusNotFound, "Record not found")
		return
	}
	delete(b.records, rec.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) lookupRecord(r *http.Request) (yclients.Booking, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "recordID"))
	if err != nil {
		return yclients.Booking{}, false
	}
	rec, ok := b.records[id]
	return rec, ok
}

func (b *Backend) findStaff(id int) (yclients.Staff, bool) {
	for _, s := range b.staff {
		if s.ID == id {
			return s, true
		}
	}
	return yclients.Staff{}, false
}

type meta struct {
	Message string `json:"message,omitempty"`
}

type response struct {
	Success bool  `json:"success"`
	Data    any   `json:"data"`
	Meta    *meta `json:"meta,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, response{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, response{Success: false, Meta: &meta{Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
