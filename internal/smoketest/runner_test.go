package smoketest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/gateway"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/statistics"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/store"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/upstream"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/config"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/monitoring"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

var (
	testCredentials = types.Credentials{Username: "Domenico", Password: "infermiere"}
	testNow         = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
)

// fakeBackend serves the clinic REST API over a MemoryStore.
// With countAll set its statistics ignore the status, like a backend missing the exclusion.
type fakeBackend struct {
	store     *store.MemoryStore
	validator *gateway.TokenValidator
	countAll  bool
}

func newFakeBackend(t *testing.T, countAll bool) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{
		store:     store.NewMemoryStore(logger.Discard()),
		validator: gateway.NewTokenValidator("smoke-secret", "", time.Hour),
		countAll:  countAll,
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", fb.login).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(gateway.NewAuthMiddleware(fb.validator, logger.Discard()).Handler)
	protected.HandleFunc("/patients", fb.createPatient).Methods(http.MethodPost)
	protected.HandleFunc("/patients/{id}", fb.deletePatient).Methods(http.MethodDelete)
	protected.HandleFunc("/appointments", fb.createAppointment).Methods(http.MethodPost)
	protected.HandleFunc("/appointments", fb.listAppointments).Methods(http.MethodGet)
	protected.HandleFunc("/appointments/{id}", fb.updateAppointment).Methods(http.MethodPut)
	protected.HandleFunc("/appointments/{id}", fb.deleteAppointment).Methods(http.MethodDelete)
	protected.HandleFunc("/statistics", fb.statistics).Methods(http.MethodGet)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return fb, server
}

func (fb *fakeBackend) reply(w http.ResponseWriter, status int, v interface{}, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		var appErr *types.AppError
		status = http.StatusInternalServerError
		if errors.As(err, &appErr) {
			status = appErr.HTTPStatus()
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"detail": err.Error()})
		return
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var creds types.Credentials
	json.NewDecoder(r.Body).Decode(&creds)
	if creds != testCredentials {
		fb.reply(w, 0, nil, types.NewAuthenticationError(types.ErrCodeAuthenticationFailed, "Credenziali non valide"))
		return
	}
	token, err := fb.validator.IssueToken(&types.UserClaims{UserID: "u-1", Username: creds.Username, Role: types.RoleNurse})
	fb.reply(w, http.StatusOK, token, err)
}

func (fb *fakeBackend) createPatient(w http.ResponseWriter, r *http.Request) {
	var p types.Patient
	json.NewDecoder(r.Body).Decode(&p)
	created, err := fb.store.CreatePatient(r.Context(), &p)
	fb.reply(w, http.StatusCreated, created, err)
}

func (fb *fakeBackend) deletePatient(w http.ResponseWriter, r *http.Request) {
	err := fb.store.DeletePatient(r.Context(), mux.Vars(r)["id"])
	fb.reply(w, http.StatusOK, map[string]string{"message": "deleted"}, err)
}

func (fb *fakeBackend) createAppointment(w http.ResponseWriter, r *http.Request) {
	var apt types.Appointment
	json.NewDecoder(r.Body).Decode(&apt)
	created, err := fb.store.Create(r.Context(), &apt)
	fb.reply(w, http.StatusOK, created, err)
}

func (fb *fakeBackend) updateAppointment(w http.ResponseWriter, r *http.Request) {
	var updates types.AppointmentUpdates
	json.NewDecoder(r.Body).Decode(&updates)
	updated, err := fb.store.Update(r.Context(), mux.Vars(r)["id"], &updates)
	fb.reply(w, http.StatusOK, updated, err)
}

func (fb *fakeBackend) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	err := fb.store.Delete(r.Context(), mux.Vars(r)["id"])
	fb.reply(w, http.StatusOK, map[string]string{"message": "deleted"}, err)
}

func (fb *fakeBackend) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := fb.store.List(r.Context(), &types.AppointmentFilters{
		Ambulatorio: q.Get("ambulatorio"),
		Data:        q.Get("data"),
	})
	fb.reply(w, http.StatusOK, list, err)
}

func (fb *fakeBackend) statistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, _ := strconv.Atoi(q.Get("anno"))
	month, _ := strconv.Atoi(q.Get("mese"))
	from, to := types.MonthRange(year, month, time.UTC)

	snapshot, err := fb.store.Snapshot(r.Context(), q.Get("ambulatorio"), from, to)
	if err != nil {
		fb.reply(w, 0, nil, err)
		return
	}
	if fb.countAll {
		for _, apt := range snapshot {
			apt.Stato = types.StatusDone
		}
	}
	fb.reply(w, http.StatusOK, statistics.Compute(snapshot, q.Get("ambulatorio"), year, month), nil)
}

func newTestClient(t *testing.T, baseURL string) *upstream.Client {
	t.Helper()
	tracing, err := monitoring.NewTracingManager(&monitoring.TracingConfig{ServiceName: "smoketest-test"})
	require.NoError(t, err)
	return upstream.NewClient(&config.UpstreamConfig{BaseURL: baseURL, Timeout: 5},
		logger.Discard(), monitoring.NewMetricsCollector("smoketest-test"), tracing)
}

func runAgainst(t *testing.T, server *httptest.Server, creds types.Credentials) *Tally {
	t.Helper()
	runner := NewRunner(newTestClient(t, server.URL+"/api"), creds, "pta_centro", time.UTC, logger.Discard())
	runner.now = func() time.Time { return testNow }
	return runner.Run(context.Background())
}

func TestRunner_PassesAgainstExcludingBackend(t *testing.T) {
	fb, server := newFakeBackend(t, false)

	// unrelated visits already booked this month
	_, err := fb.store.Create(context.Background(), &types.Appointment{
		PatientID: "p-0", Ambulatorio: "pta_centro", Data: "2025-03-03", Ora: "08:30",
		Tipo: types.TypeMED, Prestazioni: []string{"medicazione_semplice"}, Stato: types.StatusDone,
	})
	require.NoError(t, err)

	tally := runAgainst(t, server, testCredentials)

	assert.True(t, tally.OK(), tally.String())
	assert.Equal(t, 9, tally.Run)
	assert.Equal(t, 9, tally.Passed)
	assert.Empty(t, tally.Failures)

	remaining, err := fb.store.List(context.Background(), &types.AppointmentFilters{Data: "2025-03-14"})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRunner_FailsWhenNotPresentedIsCounted(t *testing.T) {
	fb, server := newFakeBackend(t, true)

	tally := runAgainst(t, server, testCredentials)

	assert.False(t, tally.OK())
	// six steps up to the failing check plus both cleanup deletions
	assert.Equal(t, 8, tally.Run)
	assert.Equal(t, 7, tally.Passed)
	require.Len(t, tally.Failures, 1)
	assert.Contains(t, tally.Failures[0], "statistics exclude non_presentato")
	assert.Contains(t, tally.Failures[0], "totale_accessi=1, want 0")

	remaining, err := fb.store.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRunner_StopsOnLoginFailure(t *testing.T) {
	_, server := newFakeBackend(t, false)

	tally := runAgainst(t, server, types.Credentials{Username: "Domenico", Password: "wrong"})

	assert.False(t, tally.OK())
	assert.Equal(t, 1, tally.Run)
	assert.Equal(t, 0, tally.Passed)
	require.Len(t, tally.Failures, 1)
	assert.Contains(t, tally.Failures[0], "login")
}

// MockClinicBackend is a mock implementation of ClinicBackend
type MockClinicBackend struct {
	mock.Mock
}

func (m *MockClinicBackend) Login(ctx context.Context, creds types.Credentials) (*types.AuthToken, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.AuthToken), args.Error(1)
}

func (m *MockClinicBackend) CreatePatient(ctx context.Context, patient *types.Patient) (*types.Patient, error) {
	args := m.Called(ctx, patient)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Patient), args.Error(1)
}

func (m *MockClinicBackend) DeletePatient(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockClinicBackend) CreateAppointment(ctx context.Context, apt *types.Appointment) (*types.Appointment, error) {
	args := m.Called(ctx, apt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Appointment), args.Error(1)
}

func (m *MockClinicBackend) UpdateAppointment(ctx context.Context, id string, updates *types.AppointmentUpdates) (*types.Appointment, error) {
	args := m.Called(ctx, id, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Appointment), args.Error(1)
}

func (m *MockClinicBackend) DeleteAppointment(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockClinicBackend) ListAppointments(ctx context.Context, filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Appointment), args.Error(1)
}

func (m *MockClinicBackend) GetStatistics(ctx context.Context, query *types.StatisticsQuery) (*types.StatisticsReport, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.StatisticsReport), args.Error(1)
}

func TestRunner_CleanupDeletesOnlyWhatWasCreated(t *testing.T) {
	backend := new(MockClinicBackend)
	backend.On("Login", mock.Anything, testCredentials).Return(&types.AuthToken{AccessToken: "tok"}, nil)
	backend.On("CreatePatient", mock.Anything, mock.MatchedBy(func(p *types.Patient) bool {
		return p.Nome == PatientNome && p.Cognome == PatientCognome && p.Tipo == types.TypePICC && p.Ambulatorio == "pta_centro"
	})).Return(&types.Patient{ID: "p-1"}, nil)
	backend.On("CreateAppointment", mock.Anything, mock.MatchedBy(func(a *types.Appointment) bool {
		return a.PatientID == "p-1" && a.Data == "2025-03-14" && a.Ora == AppointmentOra && a.Stato == types.StatusToDo
	})).Return(nil, types.NewValidationError(types.ErrCodeValidationFailed, "bad appointment", nil))
	backend.On("DeletePatient", mock.Anything, "p-1").Return(nil)

	runner := NewRunner(backend, testCredentials, "pta_centro", time.UTC, logger.Discard())
	runner.now = func() time.Time { return testNow }

	tally := runner.Run(context.Background())

	assert.False(t, tally.OK())
	assert.Equal(t, 4, tally.Run)
	assert.Equal(t, 3, tally.Passed)
	backend.AssertExpectations(t)
	backend.AssertNotCalled(t, "DeleteAppointment", mock.Anything, mock.Anything)
}

func TestRunner_BaselineMustCountNewAppointment(t *testing.T) {
	backend := new(MockClinicBackend)
	backend.On("Login", mock.Anything, testCredentials).Return(&types.AuthToken{AccessToken: "tok"}, nil)
	backend.On("CreatePatient", mock.Anything, mock.Anything).Return(&types.Patient{ID: "p-1"}, nil)
	backend.On("CreateAppointment", mock.Anything, mock.Anything).Return(&types.Appointment{ID: "a-1"}, nil)
	backend.On("GetStatistics", mock.Anything, &types.StatisticsQuery{Ambulatorio: "pta_centro", Anno: 2025, Mese: 3}).
		Return(types.NewStatisticsReport("pta_centro", 2025, 3), nil)
	backend.On("DeleteAppointment", mock.Anything, "a-1").Return(nil)
	backend.On("DeletePatient", mock.Anything, "p-1").Return(nil)

	runner := NewRunner(backend, testCredentials, "pta_centro", time.UTC, logger.Discard())
	runner.now = func() time.Time { return testNow }

	tally := runner.Run(context.Background())

	assert.False(t, tally.OK())
	require.Len(t, tally.Failures, 1)
	assert.Contains(t, tally.Failures[0], "read baseline statistics")
	backend.AssertExpectations(t)
}

func TestTally(t *testing.T) {
	tally := &Tally{}
	assert.False(t, tally.OK())

	assert.True(t, tally.Record("first", nil))
	assert.False(t, tally.Record("second", errors.New("boom")))

	assert.Equal(t, 2, tally.Run)
	assert.Equal(t, 1, tally.Passed)
	assert.Equal(t, []string{"second: boom"}, tally.Failures)
	assert.Equal(t, "Tests passed: 1/2\n  FAIL second: boom", tally.String())
}

func TestRunner_CleanupOutlivesRunDeadline(t *testing.T) {
	liveCtx := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })

	backend := new(MockClinicBackend)
	backend.On("Login", mock.Anything, testCredentials).Return(&types.AuthToken{AccessToken: "tok"}, nil)
	backend.On("CreatePatient", mock.Anything, mock.Anything).Return(&types.Patient{ID: "p-1"}, nil)
	backend.On("CreateAppointment", mock.Anything, mock.Anything).Return(&types.Appointment{ID: "a-1"}, nil)
	backend.On("GetStatistics", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)
	backend.On("DeleteAppointment", liveCtx, "a-1").Return(nil)
	backend.On("DeletePatient", liveCtx, "p-1").Return(nil)

	runner := NewRunner(backend, testCredentials, "pta_centro", time.UTC, logger.Discard())
	runner.now = func() time.Time { return testNow }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	tally := runner.Run(ctx)

	assert.False(t, tally.OK())
	assert.Equal(t, 6, tally.Run)
	assert.Equal(t, 5, tally.Passed)
	require.Len(t, tally.Failures, 1)
	assert.Contains(t, tally.Failures[0], "read baseline statistics")
	backend.AssertExpectations(t)
}
