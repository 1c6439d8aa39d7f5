// Package scheduleapi talks to the clinic's schedule backend: the week
// fetch that feeds the grid and the appointment and time-block mutations.
//
// All timestamps are sent as RFC3339 with the clinic zone's offset in effect
// on that day and parsed back through the same zone.
package scheduleapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/observability/metrics"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

var apiTracer = otel.Tracer("frontdesk.internal.scheduleapi")

// ErrSessionExpired is returned on HTTP 401 or when the configured bearer
// token is past its exp claim.
var ErrSessionExpired = errors.New("scheduleapi: session expired")

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	StatusCode int
	Reason     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scheduleapi: upstream error (status %d): %s", e.StatusCode, e.Reason)
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
	Zone        *clinictime.Zone
	Logger      *logging.Logger
	Metrics     *metrics.ConsoleMetrics
	Now         func() time.Time
}

// Client is the schedule backend client.
type Client struct {
	baseURL     string
	bearerToken string
	tokenExpiry time.Time
	httpClient  *http.Client
	zone        *clinictime.Zone
	logger      *logging.Logger
	metrics     *metrics.ConsoleMetrics
	now         func() time.Time
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("scheduleapi: base url is required")
	}
	if cfg.Zone == nil {
		return nil, errors.New("scheduleapi: clinic zone is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	token := strings.TrimSpace(cfg.BearerToken)
	return &Client{
		baseURL:     strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		bearerToken: token,
		tokenExpiry: tokenExpiry(token),
		httpClient:  httpClient,
		zone:        cfg.Zone,
		logger:      logger.Component("scheduleapi"),
		metrics:     cfg.Metrics,
		now:         now,
	}, nil
}

// tokenExpiry reads exp from a JWT without verifying it; the backend does
// that. Opaque tokens have no known expiry.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// TokenExpired reports whether the bearer token's exp claim has passed.
func (c *Client) TokenExpired() bool {
	return !c.tokenExpiry.IsZero() && !c.now().Before(c.tokenExpiry)
}

type request struct {
	op         string
	method     string
	path       string
	query      url.Values
	body       any
	idempotent bool
}

func (c *Client) do(ctx context.Context, req request) (envelope, error) {
	ctx, span := apiTracer.Start(ctx, "scheduleapi."+req.op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.method),
		attribute.String("frontdesk.scheduleapi.path", req.path),
	)

	started := time.Now()
	status := "error"
	defer func() {
		c.metrics.ObserveAPIRequest(req.op, status, time.Since(started).Seconds())
	}()

	if c.TokenExpired() {
		status = "401"
		span.RecordError(ErrSessionExpired)
		return envelope{}, ErrSessionExpired
	}

	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}
	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return envelope{}, fmt.Errorf("scheduleapi: encode %s: %w", req.op, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return envelope{}, fmt.Errorf("scheduleapi: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	if req.idempotent {
		httpReq.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return envelope{}, fmt.Errorf("scheduleapi: request failed: %w", err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("scheduleapi: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		span.RecordError(ErrSessionExpired)
		return envelope{}, ErrSessionExpired
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := env.reason()
		if decodeErr != nil || reason == "" {
			reason = fmt.Sprintf("API error: %d", resp.StatusCode)
		}
		serr := &StatusError{StatusCode: resp.StatusCode, Reason: reason}
		span.RecordError(serr)
		return envelope{}, serr
	}
	if decodeErr != nil && len(bytes.TrimSpace(raw)) > 0 {
		return envelope{}, fmt.Errorf("scheduleapi: decode %s: %w", req.op, decodeErr)
	}
	c.logger.Debug("schedule api call", "op", req.op, "status", resp.StatusCode, "duration_ms", time.Since(started).Milliseconds())
	return env, nil
}

// mutationError classifies a failed mutation as a *calendar.MutationFailure.
func mutationError(op string, err error) error {
	var serr *StatusError
	switch {
	case errors.Is(err, ErrSessionExpired):
		return &calendar.MutationFailure{Op: op, Reason: "session expired", Err: err}
	case errors.As(err, &serr):
		return &calendar.MutationFailure{Op: op, Reason: serr.Reason, Err: err}
	}
	return &calendar.MutationFailure{Op: op, Err: err}
}

func rejected(op string, env envelope, fallback string) error {
	reason := env.reason()
	if reason == "" {
		reason = fallback
	}
	return &calendar.MutationFailure{Op: op, Reason: reason}
}

// FetchWeek loads every entity between start and end inclusive as one
// snapshot. Entities the backend sends malformed are skipped and logged.
func (c *Client) FetchWeek(ctx context.Context, providers []string, start, end clinictime.Date) (calendar.Snapshot, error) {
	params := url.Values{}
	params.Set("start_date", start.String())
	params.Set("end_date", end.String())
	for _, p := range providers {
		if p = strings.TrimSpace(p); p != "" {
			params.Add("provider", p)
		}
	}

	env, err := c.do(ctx, request{op: "fetch_week", method: http.MethodGet, path: "/appointments", query: params})
	if err != nil {
		return calendar.Snapshot{}, err
	}
	if env.failed() {
		return calendar.Snapshot{}, fmt.Errorf("scheduleapi: fetch week: %s", env.reason())
	}

	snap := calendar.Snapshot{
		WeekStart:    start,
		WeekEnd:      end,
		Appointments: make([]calendar.Appointment, 0, len(env.Appointments)),
		TimeBlocks:   make([]calendar.TimeBlock, 0, len(env.EventBlocks)),
		Holidays:     make([]calendar.Holiday, 0, len(env.Holidays)),
		BookingLocks: make([]calendar.BookingLock, 0, len(env.BookingsInProgress)),
		FetchedAt:    c.now(),
	}
	for _, w := range env.Appointments {
		a, err := toAppointment(c.zone, w)
		if err != nil {
			c.logger.Warn("skipping malformed appointment", "appointment_id", string(w.ID), "error", err)
			continue
		}
		snap.Appointments = append(snap.Appointments, a)
	}
	for _, w := range env.EventBlocks {
		b, err := toTimeBlock(c.zone, w)
		if err != nil {
			c.logger.Warn("skipping malformed event block", "time_block_id", string(w.ID), "error", err)
			continue
		}
		snap.TimeBlocks = append(snap.TimeBlocks, b)
	}
	for _, w := range env.Holidays {
		h, err := toHoliday(w)
		if err != nil {
			c.logger.Warn("skipping malformed holiday", "name", w.Name, "error", err)
			continue
		}
		snap.Holidays = append(snap.Holidays, h)
	}
	for _, w := range env.BookingsInProgress {
		l, err := toBookingLock(c.zone, w)
		if err != nil {
			c.logger.Warn("skipping malformed booking in progress", "lock_id", string(w.ID), "error", err)
			continue
		}
		snap.BookingLocks = append(snap.BookingLocks, l)
	}
	return snap, nil
}

// NewAppointment is the payload for CreateAppointment.
type NewAppointment struct {
	ProviderID      string
	PatientID       string
	PatientName     string
	PatientDOB      string
	PatientPhone    string
	Start           time.Time
	DurationMinutes int
	AppointmentType string
	Reason          string
}

// CreateAppointment books a visit.
func (c *Client) CreateAppointment(ctx context.Context, in NewAppointment) (calendar.Appointment, error) {
	const op = "create_appointment"
	body := map[string]any{
		"provider":         in.ProviderID,
		"patient_name":     in.PatientName,
		"patient_dob":      in.PatientDOB,
		"patient_phone":    in.PatientPhone,
		"start_time":       c.zone.Format(in.Start),
		"duration_minutes": in.DurationMinutes,
		"appointment_type": in.AppointmentType,
		"reason":           in.Reason,
	}
	if in.PatientID != "" {
		if n, err := strconv.Atoi(in.PatientID); err == nil {
			body["patient_id"] = n
		} else {
			body["patient_id"] = in.PatientID
		}
	}

	env, err := c.do(ctx, request{op: op, method: http.MethodPost, path: "/appointments", body: body, idempotent: true})
	if err != nil {
		return calendar.Appointment{}, mutationError(op, err)
	}
	if env.failed() {
		return calendar.Appointment{}, rejected(op, env, "Failed to create appointment")
	}
	if env.Appointment == nil {
		return calendar.Appointment{}, nil
	}
	appt, err := toAppointment(c.zone, *env.Appointment)
	if err != nil {
		// Booked; the next refresh will show it.
		c.logger.Warn("created appointment has unexpected shape", "error", err)
		return calendar.Appointment{}, nil
	}
	return appt, nil
}

// Reschedule moves an appointment to newStart, optionally to another
// provider. It satisfies drag.Committer.
func (c *Client) Reschedule(ctx context.Context, appointmentID string, newStart time.Time, newProviderID string) error {
	const op = "reschedule"
	body := map[string]any{"start_time": c.zone.Format(newStart)}
	if newProviderID != "" {
		body["provider"] = newProviderID
	}
	env, err := c.do(ctx, request{
		op:         op,
		method:     http.MethodPatch,
		path:       "/appointments/" + url.PathEscape(appointmentID),
		body:       body,
		idempotent: true,
	})
	if err != nil {
		return mutationError(op, err)
	}
	if env.Success == nil || !*env.Success {
		return rejected(op, env, "Failed to reschedule appointment")
	}
	return nil
}

// DeleteAppointment cancels an appointment.
func (c *Client) DeleteAppointment(ctx context.Context, appointmentID string) error {
	const op = "delete_appointment"
	env, err := c.do(ctx, request{op: op, method: http.MethodDelete, path: "/appointments/" + url.PathEscape(appointmentID), idempotent: true})
	if err != nil {
		return mutationError(op, err)
	}
	if env.failed() {
		return rejected(op, env, "Failed to delete appointment")
	}
	return nil
}

// NewTimeBlock is the payload for CreateTimeBlock.
type NewTimeBlock struct {
	ProviderID string
	Label      string
	Start      time.Time
	End        time.Time
	Notes      string
}

// CreateTimeBlock marks a provider unavailable.
func (c *Client) CreateTimeBlock(ctx context.Context, in NewTimeBlock) (calendar.TimeBlock, error) {
	const op = "create_time_block"
	body := map[string]any{
		"provider":   in.ProviderID,
		"event_name": in.Label,
		"start_time": c.zone.Format(in.Start),
		"end_time":   c.zone.Format(in.End),
	}
	if in.Notes != "" {
		body["notes"] = in.Notes
	}
	env, err := c.do(ctx, request{op: op, method: http.MethodPost, path: "/event-blocks", body: body, idempotent: true})
	if err != nil {
		return calendar.TimeBlock{}, mutationError(op, err)
	}
	if env.failed() {
		return calendar.TimeBlock{}, rejected(op, env, "Failed to create event block")
	}
	if env.EventBlock == nil {
		return calendar.TimeBlock{}, nil
	}
	block, err := toTimeBlock(c.zone, *env.EventBlock)
	if err != nil {
		c.logger.Warn("created event block has unexpected shape", "error", err)
		return calendar.TimeBlock{}, nil
	}
	return block, nil
}

// DeleteTimeBlock removes a time block.
func (c *Client) DeleteTimeBlock(ctx context.Context, blockID string) error {
	const op = "delete_time_block"
	env, err := c.do(ctx, request{op: op, method: http.MethodDelete, path: "/event-blocks/" + url.PathEscape(blockID), idempotent: true})
	if err != nil {
		return mutationError(op, err)
	}
	if env.failed() {
		return rejected(op, env, "Failed to delete event block")
	}
	return nil
}

// Patient is a search hit for the booking form.
type Patient struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

// FullName is "First Last".
func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// SearchPatients looks patients up by name or phone for the booking form.
func (c *Client) SearchPatients(ctx context.Context, query string) ([]Patient, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	env, err := c.do(ctx, request{op: "search_patients", method: http.MethodGet, path: "/patients", query: url.Values{"query": {query}}})
	if err != nil {
		return nil, err
	}
	out := make([]Patient, 0, len(env.Patients))
	for _, p := range env.Patients {
		out = append(out, toPatient(p))
	}
	return out, nil
}

// NewPatient is the payload for AddPatient and the body of the add-patient
// dialog. Contact, address and subscriber fields are optional.
type NewPatient struct {
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	DateOfBirth           string `json:"date_of_birth"`
	Phone                 string `json:"phone,omitempty"`
	Email                 string `json:"email,omitempty"`
	Gender                string `json:"gender,omitempty"`
	StreetAddress         string `json:"street_address,omitempty"`
	City                  string `json:"city,omitempty"`
	State                 string `json:"state,omitempty"`
	ZipCode               string `json:"zip_code,omitempty"`
	PrimaryInsurance      string `json:"primary_insurance"`
	PrimarySubscriberID   string `json:"primary_subscriber_id,omitempty"`
	SecondaryInsurance    string `json:"secondary_insurance,omitempty"`
	SecondarySubscriberID string `json:"secondary_subscriber_id,omitempty"`
}

// AddPatient registers a patient. A body with success false is a
// *calendar.MutationFailure carrying the backend's reason.
func (c *Client) AddPatient(ctx context.Context, in NewPatient) (Patient, error) {
	const op = "add_patient"
	env, err := c.do(ctx, request{op: op, method: http.MethodPost, path: "/patients", body: in, idempotent: true})
	if err != nil {
		return Patient{}, mutationError(op, err)
	}
	if env.failed() {
		return Patient{}, rejected(op, env, "Failed to add patient")
	}
	if env.Patient == nil {
		return Patient{}, nil
	}
	return toPatient(*env.Patient), nil
}
