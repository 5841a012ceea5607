package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/monitoring"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

// snapshotQuery reads the appointments table owned by the clinic backend.
// Dates and times are rendered as text so a bad row degrades to a malformed record.
const snapshotQuery = `
		SELECT id::text, COALESCE(patient_id::text, ''), COALESCE(ambulatorio, ''),
			   COALESCE(to_char(data, 'YYYY-MM-DD'), ''), COALESCE(to_char(ora, 'HH24:MI'), ''),
			   COALESCE(tipo::text, ''), prestazioni, COALESCE(stato::text, '')
		FROM appointments
		WHERE ambulatorio = $1 AND data >= $2::date AND data < $3::date
		ORDER BY data, ora, id`

// PostgresStore is a read-only snapshot source over the backend database
type PostgresStore struct {
	db      *sql.DB
	logger  *logger.Logger
	tracing *monitoring.TracingManager
}

// NewPostgresStore creates a snapshot source on an open pool
func NewPostgresStore(db *sql.DB, log *logger.Logger, tracing *monitoring.TracingManager) *PostgresStore {
	return &PostgresStore{
		db:      db,
		logger:  log,
		tracing: tracing,
	}
}

// Snapshot returns the appointments of site dated in [from, to) in one statement
func (r *PostgresStore) Snapshot(ctx context.Context, site string, from, to time.Time) ([]*types.Appointment, error) {
	ctx, span := r.tracing.StartDatabaseSpan(ctx, "SELECT", "appointments")
	defer span.End()

	rows, err := r.db.QueryContext(ctx, snapshotQuery,
		site,
		from.Format(types.DateLayout),
		to.Format(types.DateLayout),
	)
	if err != nil {
		r.tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to query appointments snapshot")
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to query appointments", err)
	}
	defer rows.Close()

	appointments := make([]*types.Appointment, 0)
	for rows.Next() {
		apt := &types.Appointment{}
		var tipo, stato string
		if err := rows.Scan(
			&apt.ID,
			&apt.PatientID,
			&apt.Ambulatorio,
			&apt.Data,
			&apt.Ora,
			&tipo,
			pq.Array(&apt.Prestazioni),
			&stato,
		); err != nil {
			r.tracing.RecordError(span, err)
			return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to scan appointment", err)
		}
		apt.Tipo = types.AppointmentType(tipo)
		apt.Stato = types.AppointmentStatus(stato)
		appointments = append(appointments, apt)
	}

	if err := rows.Err(); err != nil {
		r.tracing.RecordError(span, err)
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to iterate appointments", err)
	}

	r.logger.WithContext(ctx).WithFields(logrus.Fields{
		"ambulatorio": site,
		"from":        from.Format(types.DateLayout),
		"to":          to.Format(types.DateLayout),
		"count":       len(appointments),
	}).Debug("Loaded appointments snapshot")

	return appointments, nil
}
