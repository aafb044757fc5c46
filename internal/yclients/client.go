// Package yclients is a typed client for the YClients REST API covering the
// services, staff, clients, schedules and records the booking tools use.
package yclients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/yclients-mcp/internal/observability/metrics"
	"github.com/wolfman30/yclients-mcp/internal/validation"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

const (
	DefaultBaseURL = "https://api.yclients.com/api/v1"
	defaultTimeout = 30 * time.Second
	acceptHeader   = "application/vnd.yclients.v2+json"
)

var yclientsTracer = otel.Tracer("yclients.internal.yclients")

// APIClient talks to one YClients company.
type APIClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	companyID  int
	logger     *logging.Logger
	metrics    *metrics.BackendMetrics
}

// Option configures an APIClient.
type Option func(*APIClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *APIClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. The current HTTP client is
// copied first so a client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *APIClient) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.BackendMetrics) Option {
	return func(c *APIClient) {
		c.metrics = m
	}
}

// NewAPIClient constructs a YClients client scoped to companyID.
func NewAPIClient(baseURL, token string, companyID int, logger *logging.Logger, opts ...Option) *APIClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &APIClient{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		companyID:  companyID,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompanyID returns the company the client is scoped to.
func (c *APIClient) CompanyID() int {
	return c.companyID
}

func (c *APIClient) companyPath(format string, args ...any) string {
	return fmt.Sprintf("/company/%d", c.companyID) + fmt.Sprintf(format, args...)
}

// ListServices returns every service of the company, active or not.
func (c *APIClient) ListServices(ctx context.Context) ([]Service, error) {
	var services []Service
	if err := c.doJSON(ctx, "list_services", http.MethodGet, c.companyPath("/services/"), nil, nil, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// ListStaff returns the staff roster in backend order.
func (c *APIClient) ListStaff(ctx context.Context) ([]Staff, error) {
	var staff []Staff
	if err := c.doJSON(ctx, "list_staff", http.MethodGet, c.companyPath("/staff/"), nil, nil, &staff); err != nil {
		return nil, err
	}
	return staff, nil
}

// FindClientByPhone returns the first client registered with phone, or nil.
func (c *APIClient) FindClientByPhone(ctx context.Context, phone string) (*Client, error) {
	q := url.Values{}
	q.Set("phone", phone)

	var clients []Client
	if err := c.doJSON(ctx, "find_client", http.MethodGet, c.companyPath("/clients/"), q, nil, &clients); err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, nil
	}
	return &clients[0], nil
}

// CreateClient registers a new client. The phone is normalized first; a
// malformed phone fails with a *validation.Error before any request is made.
func (c *APIClient) CreateClient(ctx context.Context, in NewClient) (*Client, error) {
	phone, err := validation.NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	in.Phone = phone

	var created Client
	if err := c.doJSON(ctx, "create_client", http.MethodPost, c.companyPath("/clients/"), nil, in, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetAvailability returns the free slots of staffID for serviceID on date (YYYY-MM-DD).
func (c *APIClient) GetAvailability(ctx context.Context, staffID, serviceID int, date string) (*Schedule, error) {
	q := url.Values{}
	q.Set("service_id", strconv.Itoa(serviceID))

	var schedule Schedule
	path := c.companyPath("/staff/%d/schedule/%s", staffID, url.PathEscape(date))
	if err := c.doJSON(ctx, "get_availability", http.MethodGet, path, q, nil, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// IsSlotAvailable reports whether datetime ("YYYY-MM-DDTHH:MM:SS") is a free
// slot for staffID and serviceID. Any failure is logged and reported as false.
func (c *APIClient) IsSlotAvailable(ctx context.Context, staffID, serviceID int, datetime string) bool {
	date, _, _ := strings.Cut(datetime, "T")
	schedule, err := c.GetAvailability(ctx, staffID, serviceID, date)
	if err != nil {
		c.logger.Warn("slot check failed, treating slot as unavailable",
			"staff_id", staffID,
			"service_id", serviceID,
			"datetime", datetime,
			"error", err,
		)
		return false
	}
	return schedule.Has(datetime)
}

// CreateBooking books an appointment and returns the stored record.
func (c *APIClient) CreateBooking(ctx context.Context, booking Booking) (*Booking, error) {
	var created Booking
	if err := c.doJSON(ctx, "create_booking", http.MethodPost, c.companyPath("/book/"), nil, booking, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetBooking fetches a single record.
func (c *APIClient) GetBooking(ctx context.Context, id int) (*Booking, error) {
	var booking Booking
	if err := c.doJSON(ctx, "get_booking", http.MethodGet, c.companyPath("/records/%d", id), nil, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// CancelBooking deletes a record.
func (c *APIClient) CancelBooking(ctx context.Context, id int) error {
	return c.doJSON(ctx, "cancel_booking", http.MethodDelete, c.companyPath("/records/%d", id), nil, nil, nil)
}

// ListClientBookings returns the records of clientID, optionally bounded by
// dateFrom and dateTo (YYYY-MM-DD, empty means unbounded).
func (c *APIClient) ListClientBookings(ctx context.Context, clientID int, dateFrom, dateTo string) ([]Booking, error) {
	q := url.Values{}
	q.Set("client_id", strconv.Itoa(clientID))
	if dateFrom != "" {
		q.Set("date_from", dateFrom)
	}
	if dateTo != "" {
		q.Set("date_to", dateTo)
	}

	var bookings []Booking
	if err := c.doJSON(ctx, "list_client_bookings", http.MethodGet, c.companyPath("/records/"), q, nil, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (c *APIClient) doJSON(ctx context.Context, operation, method, path string, query url.Values, body interface{}, out interface{}) (err error) {
	ctx, span := yclientsTracer.Start(ctx, "yclients."+operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("yclients.path", path),
		attribute.Int("yclients.company_id", c.companyID),
	)

	start := time.Now()
	status := "transport_error"
	defer func() {
		c.metrics.ObserveRequest(operation, status, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return transportError(fmt.Errorf("marshal request: %w", err))
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return transportError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("yclients API request failed", "operation", operation, "path", path, "error", err)
		return transportError(err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("yclients API non-2xx response", "operation", operation, "status", resp.StatusCode, "path", path, "body", msg)
		return errorFromResponse(resp.StatusCode, respBody)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return &APIError{Message: genericErrorMessage + ": некорректный ответ", StatusCode: resp.StatusCode, RawResponse: respBody}
	}
	if env.Success != nil && !*env.Success {
		msg := env.metaMessage()
		if msg == "" {
			msg = genericErrorMessage
		}
		c.logger.Warn("yclients API reported failure", "operation", operation, "path", path, "message", msg)
		return &APIError{Message: msg, StatusCode: resp.StatusCode, RawResponse: respBody}
	}

	if out == nil || len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.logger.Warn("yclients API payload decode failed", "operation", operation, "path", path, "error", err)
		return &APIError{Message: genericErrorMessage + ": некорректный ответ", StatusCode: resp.StatusCode, RawResponse: respBody}
	}
	return nil
}
