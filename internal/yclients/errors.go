package yclients

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is a failed YClients API call. StatusCode is zero when no HTTP
// response was received.
type APIError struct {
	Message     string
	StatusCode  int
	RawResponse []byte
}

func (e *APIError) Error() string {
	return e.Message
}

// NotFound reports whether the backend answered 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

const genericErrorMessage = "Ошибка при обращении к YClients API"

var statusMessages = map[int]string{
	http.StatusUnauthorized:        "Ошибка авторизации. Проверьте Bearer token",
	http.StatusForbidden:           "Недостаточно прав доступа",
	http.StatusNotFound:            "Ресурс не найден",
	http.StatusTooManyRequests:     "Превышен лимит запросов. Попробуйте позже",
	http.StatusInternalServerError: "Внутренняя ошибка сервера YClients",
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"meta"`
}

func (e envelope) metaMessage() string {
	if e.Meta == nil {
		return ""
	}
	return e.Meta.Message
}

// errorFromResponse maps a non-2xx response to an APIError. The fixed status
// table wins; otherwise the payload's meta.message is used when present.
func errorFromResponse(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, RawResponse: body}
	if msg, ok := statusMessages[status]; ok {
		apiErr.Message = msg
		return apiErr
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.metaMessage() != "" {
		apiErr.Message = env.metaMessage()
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("%s (HTTP %d)", genericErrorMessage, status)
	return apiErr
}

func transportError(err error) *APIError {
	return &APIError{Message: fmt.Sprintf("%s: %v", genericErrorMessage, err)}
}
