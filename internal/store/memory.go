package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/interfaces"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/monitoring"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

// MemoryStore is an in-process appointment and patient store.
// Every value handed in or out is a copy, so snapshots never change after they are taken.
type MemoryStore struct {
	mu           sync.RWMutex
	appointments map[string]*types.Appointment
	patients     map[string]*types.Patient
	logger       *logger.Logger
}

var _ interfaces.AppointmentStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		appointments: make(map[string]*types.Appointment),
		patients:     make(map[string]*types.Patient),
		logger:       log,
	}
}

// CreatePatient stores a patient and returns it with its new ID
func (s *MemoryStore) CreatePatient(ctx context.Context, p *types.Patient) (*types.Patient, error) {
	if p.Nome == "" || p.Cognome == "" || p.Ambulatorio == "" {
		return nil, types.NewValidationError(types.ErrCodeValidationFailed, "nome, cognome and ambulatorio are required", nil)
	}

	created := *p
	created.ID = uuid.New().String()

	s.mu.Lock()
	s.patients[created.ID] = &created
	s.mu.Unlock()

	out := created
	return &out, nil
}

// DeletePatient removes a patient and its appointments
func (s *MemoryStore) DeletePatient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[id]; !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("patient %s not found", id))
	}
	delete(s.patients, id)

	for aptID, apt := range s.appointments {
		if apt.PatientID == id {
			delete(s.appointments, aptID)
		}
	}
	return nil
}

// Create stores an appointment. A missing status defaults to da_fare.
func (s *MemoryStore) Create(ctx context.Context, apt *types.Appointment) (*types.Appointment, error) {
	created := apt.Clone()
	if created.Stato == "" {
		created.Stato = types.StatusToDo
	}
	if err := validateAppointment(created); err != nil {
		return nil, err
	}
	created.ID = uuid.New().String()

	s.mu.Lock()
	s.appointments[created.ID] = created
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"appointment_id": created.ID,
		"ambulatorio":    created.Ambulatorio,
		"data":           created.Data,
	}).Debug("Appointment created")

	return created.Clone(), nil
}

// Import stores appointments as given, keeping their IDs. Records are not
// validated; IDs missing from the input are generated.
func (s *MemoryStore) Import(ctx context.Context, apts []*types.Appointment) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, apt := range apts {
		if apt == nil {
			continue
		}
		c := apt.Clone()
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		s.appointments[c.ID] = c
		n++
	}
	return n
}

// LoadFixtures imports a JSON array of appointments from path
func (s *MemoryStore) LoadFixtures(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read fixtures: %w", err)
	}

	var apts []*types.Appointment
	if err := json.Unmarshal(data, &apts); err != nil {
		return 0, fmt.Errorf("failed to decode fixtures %s: %w", path, err)
	}

	n := s.Import(ctx, apts)
	s.logger.WithFields(logrus.Fields{
		"path":         path,
		"appointments": n,
	}).Info("Fixtures loaded")
	return n, nil
}

// Get returns a copy of one appointment
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apt, ok := s.appointments[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment %s not found", id))
	}
	return apt.Clone(), nil
}

// Update applies a partial update and returns the updated appointment
func (s *MemoryStore) Update(ctx context.Context, id string, updates *types.AppointmentUpdates) (*types.Appointment, error) {
	if updates == nil || updates.Empty() {
		return nil, types.NewValidationError(types.ErrCodeValidationFailed, "no updates provided", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.appointments[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment %s not found", id))
	}

	updated := current.Clone()
	updates.Apply(updated)
	if err := validateAppointment(updated); err != nil {
		return nil, err
	}
	s.appointments[id] = updated

	s.logger.WithFields(logrus.Fields{
		"appointment_id": id,
		"stato":          updated.Stato,
	}).Debug("Appointment updated")

	return updated.Clone(), nil
}

// Delete removes an appointment
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[id]; !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("appointment %s not found", id))
	}
	delete(s.appointments, id)
	return nil
}

// List returns the appointments matching filters ordered by date, time and ID
func (s *MemoryStore) List(ctx context.Context, filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*types.Appointment, 0, len(s.appointments))
	for _, apt := range s.appointments {
		if filters.Matches(apt) {
			out = append(out, apt.Clone())
		}
	}
	s.mu.RUnlock()

	sortAppointments(out)
	return out, nil
}

// Snapshot returns copies of the appointments of site dated in [from, to).
// Records whose date does not parse are kept so the aggregator counts them as malformed.
func (s *MemoryStore) Snapshot(ctx context.Context, site string, from, to time.Time) ([]*types.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lo, hi := from.Format(types.DateLayout), to.Format(types.DateLayout)

	s.mu.RLock()
	out := make([]*types.Appointment, 0)
	for _, apt := range s.appointments {
		if apt.Ambulatorio != site {
			continue
		}
		if d, err := apt.Date(); err == nil {
			if day := d.Format(types.DateLayout); day < lo || day >= hi {
				continue
			}
		}
		out = append(out, apt.Clone())
	}
	s.mu.RUnlock()

	sortAppointments(out)
	return out, nil
}

func validateAppointment(apt *types.Appointment) error {
	details := map[string]interface{}{}
	if apt.PatientID == "" {
		details["patient_id"] = "required"
	}
	if apt.Ambulatorio == "" {
		details["ambulatorio"] = "required"
	}
	if _, err := apt.Date(); err != nil {
		details["data"] = "must be YYYY-MM-DD"
	}
	if !apt.Stato.Known() {
		details["stato"] = fmt.Sprintf("unknown status %q", apt.Stato)
	}
	if len(details) > 0 {
		return types.NewValidationError(types.ErrCodeValidationFailed, "invalid appointment", details)
	}
	return nil
}

func sortAppointments(apts []*types.Appointment) {
	sort.Slice(apts, func(i, j int) bool {
		a, b := apts[i], apts[j]
		if a.Data != b.Data {
			return a.Data < b.Data
		}
		if a.Ora != b.Ora {
			return a.Ora < b.Ora
		}
		return a.ID < b.ID
	})
}

// HealthCheck reports the number of stored appointments
func (s *MemoryStore) HealthCheck(ctx context.Context) monitoring.HealthCheck {
	apts, err := s.List(ctx, nil)
	if err != nil {
		return monitoring.HealthCheck{
			Status:  monitoring.HealthStatusUnhealthy,
			Message: fmt.Sprintf("Memory store unavailable: %v", err),
		}
	}
	return monitoring.HealthCheck{
		Status:  monitoring.HealthStatusHealthy,
		Message: "Memory store healthy",
		Details: map[string]interface{}{"appointments": len(apts)},
	}
}
