package interfaces

import (
	"context"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

// ClinicBackend defines the REST operations of the clinic backend the smoke run drives
type ClinicBackend interface {
	// Authentication
	Login(ctx context.Context, creds types.Credentials) (*types.AuthToken, error)

	// Patients
	CreatePatient(ctx context.Context, patient *types.Patient) (*types.Patient, error)
	DeletePatient(ctx context.Context, id string) error

	// Appointments
	CreateAppointment(ctx context.Context, apt *types.Appointment) (*types.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, updates *types.AppointmentUpdates) (*types.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	ListAppointments(ctx context.Context, filters *types.AppointmentFilters) ([]*types.Appointment, error)

	// Statistics
	GetStatistics(ctx context.Context, query *types.StatisticsQuery) (*types.StatisticsReport, error)
}
