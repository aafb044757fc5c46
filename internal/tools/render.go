package tools

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/wolfman30/yclients-mcp/internal/availability"
	"github.com/wolfman30/yclients-mcp/internal/booking"
	"github.com/wolfman30/yclients-mcp/internal/validation"
	"github.com/wolfman30/yclients-mcp/internal/yclients"
)

func errorText(err error) string {
	var vErr *validation.Error
	if errors.As(err, &vErr) {
		return "❌ Ошибка валидации: " + vErr.Message
	}
	var apiErr *yclients.APIError
	if errors.As(err, &apiErr) {
		return "❌ Ошибка API: " + apiErr.Message
	}
	msg := err.Error()
	if msg == "" {
		msg = "Неизвестная ошибка"
	}
	return "❌ Произошла ошибка: " + msg
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(lo, hi float64) string {
	if lo == hi {
		return formatAmount(lo) + " руб."
	}
	return fmt.Sprintf("от %s до %s руб.", formatAmount(lo), formatAmount(hi))
}

func newCollator() *collate.Collator {
	return collate.New(language.Russian)
}

func serviceTitles(services []yclients.Service) string {
	titles := make([]string, 0, len(services))
	for _, svc := range services {
		titles = append(titles, svc.Title)
	}
	return strings.Join(titles, ", ")
}

func staffNames(staff []yclients.Staff) string {
	names := make([]string, 0, len(staff))
	for _, s := range staff {
		names = append(names, s.Name)
	}
	return strings.Join(names, ", ")
}

var backendDatetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// parseBackendDatetime reads a record datetime. Values without an offset are
// wall-clock times in loc.
func parseBackendDatetime(value string, loc *time.Location) (time.Time, bool) {
	for _, layout := range backendDatetimeLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

func formatRuDateTime(value string, loc *time.Location) string {
	t, ok := parseBackendDatetime(value, loc)
	if !ok {
		return value
	}
	return t.Format("02.01.2006 15:04")
}

func renderSearch(res *availability.SearchResult) string {
	req := res.Request
	switch res.Status {
	case availability.StatusServiceNotFound:
		return fmt.Sprintf("❌ Услуга \"%s\" не найдена. Доступные услуги: %s", req.ServiceQuery, serviceTitles(res.ActiveServices))
	case availability.StatusServiceAmbiguous:
		return fmt.Sprintf("❌ Найдено несколько услуг по запросу \"%s\": %s. Уточните название услуги.", req.ServiceQuery, serviceTitles(res.ServiceMatches))
	case availability.StatusStaffNotFound:
		return fmt.Sprintf("❌ Мастер \"%s\" не найден. Доступные мастера: %s", req.StaffQuery, staffNames(res.Roster))
	case availability.StatusStaffAmbiguous:
		return fmt.Sprintf("❌ Найдено несколько мастеров по запросу \"%s\": %s. Уточните имя мастера.", req.StaffQuery, staffNames(res.StaffMatches))
	case availability.StatusNoEligibleStaff:
		return fmt.Sprintf("❌ Нет доступных мастеров для услуги \"%s\"", res.Service.Title)
	case availability.StatusNoSlots:
		return fmt.Sprintf("❌ Нет свободного времени для услуги \"%s\" в период с %s по %s", res.Service.Title, req.DateFrom, req.DateTo)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 Доступное время для услуги \"%s\":\n\n", res.Service.Title)
	for _, day := range res.Days {
		fmt.Fprintf(&b, "🗓 %s:\n", day.Date)
		for _, slot := range day.Slots {
			fmt.Fprintf(&b, "   • %s - %s\n", slot.Time, slot.StaffName)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderBookingOutcome(out *booking.Outcome) string {
	req := out.Request
	switch out.Status {
	case booking.StatusPastDate:
		return "❌ Дата должна быть не ранее сегодня"
	case booking.StatusServiceNotFound:
		return fmt.Sprintf("❌ Услуга \"%s\" не найдена. Доступные услуги: %s", req.ServiceName, serviceTitles(out.ActiveServices))
	case booking.StatusServiceAmbiguous:
		return fmt.Sprintf("❌ Найдено несколько услуг по запросу \"%s\": %s. Уточните название услуги.", req.ServiceName, serviceTitles(out.ServiceMatches))
	case booking.StatusStaffNotFound:
		return fmt.Sprintf("❌ Мастер \"%s\" не найден. Доступные мастера: %s", req.MasterName, staffNames(out.Roster))
	case booking.StatusStaffAmbiguous:
		return fmt.Sprintf("❌ Найдено несколько мастеров по запросу \"%s\": %s. Уточните имя мастера.", req.MasterName, staffNames(out.StaffMatches))
	case booking.StatusNoEligibleStaff:
		return fmt.Sprintf("❌ Нет доступных мастеров для услуги \"%s\"", out.Service.Title)
	case booking.StatusSlotUnavailable:
		alternatives := ""
		switch {
		case out.AlternativesErr != nil:
			alternatives = errorText(out.AlternativesErr)
		case out.Alternatives != nil:
			alternatives = renderSearch(out.Alternatives)
		}
		return fmt.Sprintf("❌ Время %s недоступно на %s.\n\n%s", req.PreferredTime, req.PreferredDate, alternatives)
	}

	var b strings.Builder
	b.WriteString("✅ Запись создана успешно!\n\n")
	b.WriteString("📋 Детали записи:\n")
	fmt.Fprintf(&b, "• Клиент: %s (%s)\n", out.Client.Name, out.Client.Phone)
	fmt.Fprintf(&b, "• Услуга: %s\n", out.Service.Title)
	fmt.Fprintf(&b, "• Мастер: %s\n", out.Staff.Name)
	fmt.Fprintf(&b, "• Дата и время: %s %s\n", req.PreferredDate, req.PreferredTime)
	fmt.Fprintf(&b, "• Длительность: %d минут\n", out.Service.Duration)
	fmt.Fprintf(&b, "• Стоимость: от %s руб.\n", formatAmount(out.Service.PriceMin))
	fmt.Fprintf(&b, "• ID записи: %d\n", out.Booking.ID)
	if req.Comment != "" {
		fmt.Fprintf(&b, "• Комментарий: %s\n", req.Comment)
	}
	return b.String()
}

func renderClient(c *yclients.Client) string {
	email := c.Email
	if email == "" {
		email = "не указан"
	}
	var b strings.Builder
	b.WriteString("👤 Найден клиент:\n")
	fmt.Fprintf(&b, "• Имя: %s\n", c.Name)
	fmt.Fprintf(&b, "• Телефон: %s\n", c.Phone)
	fmt.Fprintf(&b, "• Email: %s\n", email)
	fmt.Fprintf(&b, "• ID: %d\n", c.ID)
	if c.Comment != "" {
		fmt.Fprintf(&b, "• Комментарий: %s\n", c.Comment)
	}
	return b.String()
}

func attendanceLabel(attendance *int) string {
	if attendance == nil {
		return "⏳ Запланировано"
	}
	switch *attendance {
	case yclients.AttendanceCompleted:
		return "✅ Выполнено"
	case yclients.AttendanceCancelled:
		return "❌ Отменено"
	default:
		return "⏳ Запланировано"
	}
}

func lineItemTitles(services []yclients.BookingService) string {
	titles := make([]string, 0, len(services))
	for _, svc := range services {
		titles = append(titles, svc.Title)
	}
	return strings.Join(titles, ", ")
}

func renderClientBookings(c *yclients.Client, bookings []yclients.Booking, loc *time.Location) string {
	if len(bookings) == 0 {
		return fmt.Sprintf("📅 У клиента %s (%s) нет записей в указанном периоде", c.Name, c.Phone)
	}

	sorted := append([]yclients.Booking(nil), bookings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, okI := parseBackendDatetime(sorted[i].Datetime, loc)
		tj, okJ := parseBackendDatetime(sorted[j].Datetime, loc)
		if okI && okJ {
			return ti.Before(tj)
		}
		return okI && !okJ
	})

	var b strings.Builder
	fmt.Fprintf(&b, "📅 Записи клиента %s (%s):\n\n", c.Name, c.Phone)
	for i, rec := range sorted {
		fmt.Fprintf(&b, "%d. %s\n", i+1, formatRuDateTime(rec.Datetime, loc))
		fmt.Fprintf(&b, "   📋 Услуги: %s\n", lineItemTitles(rec.Services))
		fmt.Fprintf(&b, "   💰 Стоимость: %s руб.\n", formatAmount(rec.TotalCost()))
		fmt.Fprintf(&b, "   ⏱ Длительность: %d мин.\n", rec.SeanceLength)
		fmt.Fprintf(&b, "   📊 Статус: %s\n", attendanceLabel(rec.Attendance))
		fmt.Fprintf(&b, "   🆔 ID записи: %d\n", rec.ID)
		if rec.Comment != "" {
			fmt.Fprintf(&b, "   💬 Комментарий: %s\n", rec.Comment)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderCancelled(rec *yclients.Booking, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("✅ Запись отменена успешно!\n\n")
	b.WriteString("📋 Отмененная запись:\n")
	fmt.Fprintf(&b, "• Клиент: %s (%s)\n", rec.Client.Name, rec.Client.Phone)
	fmt.Fprintf(&b, "• Дата и время: %s\n", formatRuDateTime(rec.Datetime, loc))
	fmt.Fprintf(&b, "• Услуги: %s\n", lineItemTitles(rec.Services))
	fmt.Fprintf(&b, "• ID записи: %d\n", rec.ID)
	return b.String()
}

// renderServices groups active services by category id, ascending. Category 0
// has no header. Titles are ordered with Russian collation.
func renderServices(services []yclients.Service) string {
	if len(services) == 0 {
		return "❌ Нет доступных услуг"
	}

	byCategory := make(map[int][]yclients.Service)
	var categories []int
	for _, svc := range services {
		if _, seen := byCategory[svc.CategoryID]; !seen {
			categories = append(categories, svc.CategoryID)
		}
		byCategory[svc.CategoryID] = append(byCategory[svc.CategoryID], svc)
	}
	sort.Ints(categories)

	col := newCollator()
	var b strings.Builder
	b.WriteString("📋 Список услуг салона:\n\n")
	for _, category := range categories {
		if category != 0 {
			fmt.Fprintf(&b, "📁 Категория %d:\n", category)
		}
		group := byCategory[category]
		sort.SliceStable(group, func(i, j int) bool {
			return col.CompareString(group[i].Title, group[j].Title) < 0
		})
		for _, svc := range group {
			fmt.Fprintf(&b, "• %s\n", svc.Title)
			fmt.Fprintf(&b, "  💰 Цена: %s\n", formatPrice(svc.PriceMin, svc.PriceMax))
			fmt.Fprintf(&b, "  ⏱ Длительность: %d мин.\n", svc.Duration)
			fmt.Fprintf(&b, "  🆔 ID: %d\n\n", svc.ID)
		}
	}
	return b.String()
}

func renderStaff(staff []yclients.Staff) string {
	if len(staff) == 0 {
		return "❌ Нет доступных мастеров"
	}

	sorted := append([]yclients.Staff(nil), staff...)
	col := newCollator()
	sort.SliceStable(sorted, func(i, j int) bool {
		return col.CompareString(sorted[i].Name, sorted[j].Name) < 0
	})

	var b strings.Builder
	b.WriteString("👥 Список мастеров салона:\n\n")
	for i, s := range sorted {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Name)
		if s.Specialization != "" {
			fmt.Fprintf(&b, "   🎯 Специализация: %s\n", s.Specialization)
		}
		if s.Position != nil && s.Position.Title != "" {
			fmt.Fprintf(&b, "   💼 Должность: %s\n", s.Position.Title)
		}
		fmt.Fprintf(&b, "   🆔 ID: %d\n", s.ID)
		if len(s.Services) > 0 {
			fmt.Fprintf(&b, "   🛠 Услуги: %d услуг\n", len(s.Services))
		}
		b.WriteString("\n")
	}
	return b.String()
}
