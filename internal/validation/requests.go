package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// BookAppointmentRequest is the argument shape of book_appointment.
type BookAppointmentRequest struct {
	ClientPhone   string `json:"client_phone" validate:"notblank,ru_phone"`
	ClientName    string `json:"client_name" validate:"notblank"`
	ServiceName   string `json:"service_name" validate:"notblank"`
	PreferredDate string `json:"preferred_date" validate:"notblank,ymd"`
	PreferredTime string `json:"preferred_time" validate:"notblank,hhmm"`
	MasterName    string `json:"master_name,omitempty"`
	Comment       string `json:"comment,omitempty"`
}

// FindAvailableTimeRequest is the argument shape of find_available_time.
type FindAvailableTimeRequest struct {
	ServiceName string `json:"service_name" validate:"notblank"`
	DateFrom    string `json:"date_from" validate:"notblank,ymd"`
	DateTo      string `json:"date_to" validate:"notblank,ymd"`
	MasterName  string `json:"master_name,omitempty"`
}

// FindClientRequest is the argument shape of find_client.
type FindClientRequest struct {
	Phone string `json:"phone" validate:"notblank"`
}

// ClientBookingsRequest is the argument shape of get_client_bookings.
type ClientBookingsRequest struct {
	Phone    string `json:"phone" validate:"notblank"`
	DateFrom string `json:"date_from,omitempty" validate:"omitempty,ymd"`
	DateTo   string `json:"date_to,omitempty" validate:"omitempty,ymd"`
}

// CancelBookingRequest is the argument shape of cancel_booking.
type CancelBookingRequest struct {
	BookingID int `json:"booking_id" validate:"required,gt=0"`
}

var requiredMessages = map[string]string{
	"client_phone":   "Телефон клиента обязателен",
	"client_name":    "Имя клиента обязательно",
	"service_name":   "Название услуги обязательно",
	"preferred_date": "Желаемая дата обязательна",
	"preferred_time": "Желаемое время обязательно",
	"date_from":      "Начальная дата обязательна",
	"date_to":        "Конечная дата обязательна",
	"phone":          "Телефон обязателен",
	"booking_id":     "ID записи обязателен",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "ru_phone", func(fl validator.FieldLevel) bool {
		return IsCanonicalPhone(fl.Field().String())
	})
	mustRegister(v, "ymd", func(fl validator.FieldLevel) bool {
		return IsDate(fl.Field().String())
	})
	mustRegister(v, "hhmm", func(fl validator.FieldLevel) bool {
		return IsClock(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Parse decodes an untyped argument bag into T and checks its declared
// constraints. It stops at the first violation and reports its field.
func Parse[T any](args json.RawMessage) (T, error) {
	var out T

	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	if err := json.Unmarshal(trimmed, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return out, newError(typeErr.Field, fmt.Sprintf("Поле %s имеет неверный тип, ожидается %s", typeErr.Field, typeErr.Type))
		}
		return out, newError("", "Аргументы должны быть JSON-объектом")
	}

	if err := validate.Struct(out); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return out, newError(first.Field(), messageFor(first))
		}
		return out, fmt.Errorf("validate arguments: %w", err)
	}
	return out, nil
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank", "required":
		if msg, ok := requiredMessages[fe.Field()]; ok {
			return msg
		}
		return fmt.Sprintf("Поле %s обязательно", fe.Field())
	case "ru_phone":
		return "Телефон должен быть в формате +7XXXXXXXXXX"
	case "ymd":
		return "Дата должна быть в формате YYYY-MM-DD"
	case "hhmm":
		return "Время должно быть в формате HH:MM"
	case "gt":
		return fmt.Sprintf("Поле %s должно быть положительным числом", fe.Field())
	default:
		return fmt.Sprintf("Поле %s не прошло проверку %s", fe.Field(), fe.Tag())
	}
}
