package statistics

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/interfaces"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/monitoring"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

// Service implements the StatisticsService interface over an appointment source
type Service struct {
	source   interfaces.AppointmentSource
	logger   *logger.Logger
	metrics  *monitoring.MetricsCollector
	tracing  *monitoring.TracingManager
	location *time.Location
}

// NewService creates a statistics service. Month boundaries are taken in loc.
func NewService(
	source interfaces.AppointmentSource,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
	tracing *monitoring.TracingManager,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		source:   source,
		logger:   log,
		metrics:  metrics,
		tracing:  tracing,
		location: loc,
	}
}

// GetReport computes the report of a site and month from a fresh snapshot
func (s *Service) GetReport(ctx context.Context, query *types.StatisticsQuery) (*types.StatisticsReport, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := s.tracing.StartReportSpan(ctx, query.Ambulatorio, query.Anno, query.Mese)
	defer span.End()

	from, to := types.MonthRange(query.Anno, query.Mese, s.location)
	snapshot, err := s.source.Snapshot(ctx, query.Ambulatorio, from, to)
	if err != nil {
		s.tracing.RecordError(span, err)
		s.metrics.RecordReport(query.Ambulatorio, false, time.Since(start))
		s.logger.WithContext(ctx).WithFields(logrus.Fields{
			"ambulatorio": query.Ambulatorio,
			"anno":        query.Anno,
			"mese":        query.Mese,
		}).WithError(err).Error("Failed to load appointment snapshot")
		return nil, sourceError(err)
	}

	report, excluded := ComputeDetailed(snapshot, query.Ambulatorio, query.Anno, query.Mese)

	for reason, n := range excluded {
		s.metrics.RecordExcluded(string(reason), n)
	}
	s.metrics.RecordReport(query.Ambulatorio, true, time.Since(start))

	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"ambulatorio":    query.Ambulatorio,
		"anno":           query.Anno,
		"mese":           query.Mese,
		"snapshot_size":  len(snapshot),
		"totale_accessi": report.TotaleAccessi,
		"excluded":       excluded.Total(),
	}).Info("Statistics report computed")

	return report, nil
}

// ExportReport computes the report and renders it as an xlsx workbook
func (s *Service) ExportReport(ctx context.Context, query *types.StatisticsQuery) ([]byte, error) {
	report, err := s.GetReport(ctx, query)
	if err != nil {
		return nil, err
	}

	data, err := RenderWorkbook(report)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to render statistics workbook", err)
	}
	return data, nil
}

// sourceError keeps NotFound from the source and reports every other failure,
// including rejected service credentials, as an upstream failure.
func sourceError(err error) error {
	if types.IsKind(err, types.ErrorTypeNotFound) {
		return err
	}
	return types.NewExternalError(
		types.ErrCodeExternalError,
		"failed to load appointments",
		fmt.Errorf("snapshot: %w", err),
	)
}
