package interfaces

import (
	"context"
	"time"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

// AppointmentSource provides point-in-time appointment snapshots for statistics.
// Implementations return the appointments of site whose date lies in [from, to);
// callers may receive extra records and must filter again.
type AppointmentSource interface {
	Snapshot(ctx context.Context, site string, from, to time.Time) ([]*types.Appointment, error)
}

// StatisticsService defines the monthly utilisation report operations
type StatisticsService interface {
	GetReport(ctx context.Context, query *types.StatisticsQuery) (*types.StatisticsReport, error)
	ExportReport(ctx context.Context, query *types.StatisticsQuery) ([]byte, error)
}

// AppointmentStore is the mutable appointment store the smoke backend and memory source share
type AppointmentStore interface {
	AppointmentSource

	Create(ctx context.Context, apt *types.Appointment) (*types.Appointment, error)
	Get(ctx context.Context, id string) (*types.Appointment, error)
	Update(ctx context.Context, id string, updates *types.AppointmentUpdates) (*types.Appointment, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filters *types.AppointmentFilters) ([]*types.Appointment, error)
}
