package yclients

import "strings"

// Client is a salon customer record.
type Client struct {
	ID        int     `json:"id,omitempty"`
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	Email     string  `json:"email,omitempty"`
	BirthDate string  `json:"birth_date,omitempty"`
	SexID     int     `json:"sex_id,omitempty"`
	Discount  float64 `json:"discount,omitempty"`
	Comment   string  `json:"comment,omitempty"`
}

// NewClient is the payload for creating a client.
type NewClient struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Service is a bookable salon service.
type Service struct {
	ID         int     `json:"id"`
	Title      string  `json:"title"`
	CategoryID int     `json:"category_id"`
	PriceMin   float64 `json:"price_min"`
	PriceMax   float64 `json:"price_max"`
	Duration   int     `json:"duration"`
	Active     int     `json:"active"`
	Staff      []int   `json:"staff"`
}

// IsActive reports whether the service can be booked by name.
func (s Service) IsActive() bool {
	return s.Active == 1
}

// Position is a staff member's job title.
type Position struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// Staff is a master who performs services.
type Staff struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	Position       *Position `json:"position,omitempty"`
	Services       []int     `json:"services"`
}

// CanPerform reports whether the staff member is eligible for serviceID.
// A missing service list means the master performs every service; an empty
// list means none.
func (s Staff) CanPerform(serviceID int) bool {
	if s.Services == nil {
		return true
	}
	for _, id := range s.Services {
		if id == serviceID {
			return true
		}
	}
	return false
}

// ScheduleSlot is one bookable instant in a staff member's day.
type ScheduleSlot struct {
	Time         string `json:"time"`
	SeanceLength int    `json:"seance_length"`
	Datetime     string `json:"datetime"`
}

// Schedule lists the free slots of one staff member on one date.
type Schedule struct {
	StaffID int            `json:"staff_id"`
	Date    string         `json:"date"`
	Times   []ScheduleSlot `json:"times"`
}

// Has reports whether the schedule advertises the given local datetime.
// Backend datetimes may carry a UTC offset; only the local part is compared.
func (s *Schedule) Has(datetime string) bool {
	if s == nil {
		return false
	}
	want := localPart(datetime)
	for _, slot := range s.Times {
		if localPart(slot.Datetime) == want {
			return true
		}
	}
	return false
}

func localPart(datetime string) string {
	const localLen = len("2006-01-02T15:04:05")
	datetime = strings.TrimSpace(datetime)
	if len(datetime) > localLen && datetime[10] == 'T' {
		return datetime[:localLen]
	}
	return datetime
}

// BookingService is a service line item copied into a booking.
type BookingService struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Cost        float64  `json:"cost"`
	ManualCost  *float64 `json:"manual_cost,omitempty"`
	CostPerUnit float64  `json:"cost_per_unit"`
	FirstCost   float64  `json:"first_cost"`
	Amount      int      `json:"amount"`
	Discount    float64  `json:"discount"`
}

// BookingClient is the client snapshot embedded in a booking.
type BookingClient struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Attendance values reported by the backend.
const (
	AttendanceNoShow    = 0
	AttendanceCompleted = 1
	AttendanceCancelled = 2
)

// Booking is an appointment record.
type Booking struct {
	ID           int              `json:"id,omitempty"`
	CompanyID    int              `json:"company_id"`
	StaffID      int              `json:"staff_id"`
	Services     []BookingService `json:"services"`
	Client       BookingClient    `json:"client"`
	Datetime     string           `json:"datetime"`
	SeanceLength int              `json:"seance_length"`
	Comment      string           `json:"comment,omitempty"`
	SaveIfBusy   *bool            `json:"save_if_busy,omitempty"`
	Attendance   *int             `json:"attendance,omitempty"`
}

// TotalCost sums the cost of every line item.
func (b Booking) TotalCost() float64 {
	var total float64
	for _, svc := range b.Services {
		total += svc.Cost
	}
	return total
}
