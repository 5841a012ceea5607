package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/config"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/interfaces"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/monitoring"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

// Client talks to the REST API of the clinic backend
type Client struct {
	httpClient  *resty.Client
	credentials types.Credentials
	logger      *logger.Logger
	metrics     *monitoring.MetricsCollector
	tracing     *monitoring.TracingManager

	mu    sync.RWMutex
	token string
}

var (
	_ interfaces.ClinicBackend     = (*Client)(nil)
	_ interfaces.AppointmentSource = (*Client)(nil)
)

// NewClient creates a backend client. Configured credentials are used to log in
// lazily and to renew an expired token once per call.
func NewClient(cfg *config.UpstreamConfig, log *logger.Logger, metrics *monitoring.MetricsCollector, tracing *monitoring.TracingManager) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.TimeoutDuration()).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(retryIdempotent).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient:  httpClient,
		credentials: types.Credentials{Username: cfg.Username, Password: cfg.Password},
		logger:      log,
		metrics:     metrics,
		tracing:     tracing,
	}
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login exchanges credentials for a bearer token and keeps it for later calls
func (c *Client) Login(ctx context.Context, creds types.Credentials) (*types.AuthToken, error) {
	var token types.AuthToken
	_, err := c.send(ctx, "login", http.MethodPost, "/auth/login", false, func(r *resty.Request) {
		r.SetBody(creds).SetResult(&token)
	})
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, types.NewAuthenticationError(types.ErrCodeAuthenticationFailed, "login response carries no access_token")
	}

	c.SetToken(token.AccessToken)
	return &token, nil
}

// CreatePatient registers a patient
func (c *Client) CreatePatient(ctx context.Context, patient *types.Patient) (*types.Patient, error) {
	var created types.Patient
	_, err := c.send(ctx, "create_patient", http.MethodPost, "/patients", true, func(r *resty.Request) {
		r.SetBody(patient).SetResult(&created)
	})
	if err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, types.NewExternalError(types.ErrCodeExternalError, "patient response carries no id", nil)
	}
	return &created, nil
}

// DeletePatient removes a patient
func (c *Client) DeletePatient(ctx context.Context, id string) error {
	_, err := c.send(ctx, "delete_patient", http.MethodDelete, "/patients/{id}", true, func(r *resty.Request) {
		r.SetPathParam("id", id)
	})
	return err
}

// CreateAppointment schedules an appointment
func (c *Client) CreateAppointment(ctx context.Context, apt *types.Appointment) (*types.Appointment, error) {
	var created types.Appointment
	_, err := c.send(ctx, "create_appointment", http.MethodPost, "/appointments", true, func(r *resty.Request) {
		r.SetBody(apt).SetResult(&created)
	})
	if err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, types.NewExternalError(types.ErrCodeExternalError, "appointment response carries no id", nil)
	}
	return &created, nil
}

// UpdateAppointment sends a partial update, e.g. {"stato": "non_presentato"}
func (c *Client) UpdateAppointment(ctx context.Context, id string, updates *types.AppointmentUpdates) (*types.Appointment, error) {
	var updated types.Appointment
	_, err := c.send(ctx, "update_appointment", http.MethodPut, "/appointments/{id}", true, func(r *resty.Request) {
		r.SetPathParam("id", id).SetBody(updates).SetResult(&updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteAppointment removes an appointment
func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	_, err := c.send(ctx, "delete_appointment", http.MethodDelete, "/appointments/{id}", true, func(r *resty.Request) {
		r.SetPathParam("id", id)
	})
	return err
}

// ListAppointments returns the appointments matching filters
func (c *Client) ListAppointments(ctx context.Context, filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	params := map[string]string{}
	if filters != nil {
		if filters.Ambulatorio != "" {
			params["ambulatorio"] = filters.Ambulatorio
		}
		if filters.Data != "" {
			params["data"] = filters.Data
		}
		if filters.PatientID != "" {
			params["patient_id"] = filters.PatientID
		}
	}

	var appointments []*types.Appointment
	_, err := c.send(ctx, "list_appointments", http.MethodGet, "/appointments", true, func(r *resty.Request) {
		r.SetQueryParams(params).SetResult(&appointments)
	})
	if err != nil {
		return nil, err
	}
	if appointments == nil {
		appointments = []*types.Appointment{}
	}
	return appointments, nil
}

// GetStatistics reads the backend's own monthly report
func (c *Client) GetStatistics(ctx context.Context, query *types.StatisticsQuery) (*types.StatisticsReport, error) {
	report := types.NewStatisticsReport(query.Ambulatorio, query.Anno, query.Mese)
	_, err := c.send(ctx, "get_statistics", http.MethodGet, "/statistics", true, func(r *resty.Request) {
		r.SetQueryParams(map[string]string{
			"ambulatorio": query.Ambulatorio,
			"anno":        strconv.Itoa(query.Anno),
			"mese":        strconv.Itoa(query.Mese),
		}).SetResult(report)
	})
	if err != nil {
		return nil, err
	}

	if report.Prestazioni == nil {
		report.Prestazioni = map[string]int{}
	}
	if report.AccessiPerTipo == nil {
		report.AccessiPerTipo = map[string]int{}
	}
	return report, nil
}

// Snapshot lists the appointments of site and drops those dated outside [from, to).
// Records with an unparseable date are kept so the aggregator can count them as malformed.
func (c *Client) Snapshot(ctx context.Context, site string, from, to time.Time) ([]*types.Appointment, error) {
	all, err := c.ListAppointments(ctx, &types.AppointmentFilters{Ambulatorio: site})
	if err != nil {
		return nil, err
	}

	lo, hi := from.Format(types.DateLayout), to.Format(types.DateLayout)
	out := make([]*types.Appointment, 0, len(all))
	for _, apt := range all {
		if apt == nil {
			continue
		}
		if _, err := apt.Date(); err == nil && (apt.Data < lo || apt.Data >= hi) {
			continue
		}
		out = append(out, apt)
	}
	return out, nil
}

// ensureToken logs in with the configured credentials when no token is held
func (c *Client) ensureToken(ctx context.Context) error {
	if c.Token() != "" || c.credentials.Username == "" {
		return nil
	}
	_, err := c.Login(ctx, c.credentials)
	return err
}

// send performs one call. Authenticated calls log in first when needed and,
// if the backend answers 401 with configured credentials, log in again and retry once.
func (c *Client) send(ctx context.Context, op, method, path string, authenticated bool, configure func(*resty.Request)) (*resty.Response, error) {
	if authenticated {
		if err := c.ensureToken(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.execute(ctx, op, method, path, authenticated, configure)
	if authenticated && resp != nil && resp.StatusCode() == http.StatusUnauthorized && c.credentials.Username != "" {
		c.SetToken("")
		if loginErr := c.ensureToken(ctx); loginErr != nil {
			return nil, loginErr
		}
		resp, err = c.execute(ctx, op, method, path, authenticated, configure)
	}
	return resp, err
}

func (c *Client) execute(ctx context.Context, op, method, path string, authenticated bool, configure func(*resty.Request)) (*resty.Response, error) {
	start := time.Now()
	ctx, span := c.tracing.StartUpstreamSpan(ctx, op)
	defer span.End()

	req := c.httpClient.R().SetContext(ctx)
	if token := c.Token(); authenticated && token != "" {
		req.SetAuthToken(token)
	}
	configure(req)

	resp, err := req.Execute(method, path)

	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	if err != nil {
		err = types.NewExternalError(types.ErrCodeExternalError, fmt.Sprintf("%s %s failed", method, path), err)
	} else if !resp.IsSuccess() {
		err = statusError(resp)
	}

	if err != nil {
		c.tracing.RecordError(span, err)
	}
	c.metrics.RecordUpstreamCall(op, err == nil)
	c.logger.Upstream(ctx, method, path, status, time.Since(start).Milliseconds(), err)

	return resp, err
}

// retryIdempotent retries transport failures of GET, PUT and DELETE only.
// A POST that timed out may already have been stored by the backend.
func retryIdempotent(resp *resty.Response, err error) bool {
	if err == nil || resp == nil || resp.Request == nil {
		return false
	}
	switch resp.Request.Method {
	case http.MethodGet, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// statusError maps a non-2xx answer to an error kind
func statusError(resp *resty.Response) error {
	code := resp.StatusCode()
	message := errorMessage(resp.Body())
	if message == "" {
		message = fmt.Sprintf("backend answered %d", code)
	}

	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewAuthenticationError(types.ErrCodeUnauthorized, message)
	case http.StatusNotFound:
		return types.NewNotFoundError(types.ErrCodeNotFound, message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return types.NewValidationError(types.ErrCodeValidationFailed, message, map[string]interface{}{
			"status": code,
		})
	default:
		return types.NewExternalError(types.ErrCodeExternalError, message, fmt.Errorf("status %d", code))
	}
}

// errorMessage extracts {"detail": "..."} or {"error": "..."} from an error body
func errorMessage(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil && detail != "" {
		return detail
	}
	if len(payload.Detail) > 0 && string(payload.Detail) != "null" {
		return string(payload.Detail)
	}
	return payload.Error
}
