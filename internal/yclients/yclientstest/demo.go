package yclientstest

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/yclients-mcp/internal/yclients"
)

// Serve starts b on a test server that is closed with the test and returns its URL.
func (b *Backend) Serve(t testing.TB) string {
	t.Helper()
	ts := httptest.NewServer(b.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// NewDemo returns a small salon with a week of free slots starting at from.
func NewDemo(companyID int, token string, from time.Time) *Backend {
	b := New(companyID, token)

	b.AddService(yclients.Service{ID: 101, Title: "Стрижка женская", CategoryID: 1, PriceMin: 1800, PriceMax: 3500, Duration: 60, Active: 1})
	b.AddService(yclients.Service{ID: 102, Title: "Стрижка мужская", CategoryID: 1, PriceMin: 1200, PriceMax: 1200, Duration: 45, Active: 1})
	b.AddService(yclients.Service{ID: 103, Title: "Окрашивание", CategoryID: 2, PriceMin: 4000, PriceMax: 9000, Duration: 120, Active: 1})
	b.AddService(yclients.Service{ID: 104, Title: "Маникюр", CategoryID: 3, PriceMin: 1500, PriceMax: 1500, Duration: 90, Active: 1})
	b.AddService(yclients.Service{ID: 105, Title: "Укладка", CategoryID: 0, PriceMin: 1000, PriceMax: 2000, Duration: 40, Active: 0})

	b.AddStaff(yclients.Staff{ID: 1, Name: "Ольга Смирнова", Specialization: "Парикмахер-стилист", Position: &yclients.Position{ID: 1, Title: "Топ-стилист"}, Services: []int{101, 102, 103}})
	b.AddStaff(yclients.Staff{ID: 2, Name: "Ирина Ковалёва", Specialization: "Мастер маникюра", Services: []int{104}})
	b.AddStaff(yclients.Staff{ID: 3, Name: "Дмитрий Орлов", Specialization: "Барбер", Services: []int{102}})

	b.AddClient(yclients.Client{Name: "Анна Петрова", Phone: "+79001234567"})

	for day := 0; day < 7; day++ {
		date := from.AddDate(0, 0, day).Format("2006-01-02")
		b.SetSlots(1, date, "10:00", "12:00", "15:00", "17:30")
		b.SetSlots(2, date, "09:00", "11:00", "14:00")
		b.SetSlots(3, date, "11:00", "13:00", "16:00", "18:00")
	}
	return b
}
