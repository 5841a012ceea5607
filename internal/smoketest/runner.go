package smoketest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/interfaces"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

// Fixture values of the smoke run
const (
	PatientNome    = "Test"
	PatientCognome = "Rosso"
	AppointmentOra = "09:00"
)

// CleanupTimeout bounds the deletions that run after the sequence
const CleanupTimeout = 30 * time.Second

// Prestazioni are the service codes of the smoke appointment
var Prestazioni = []string{"medicazione_semplice", "irrigazione_catetere"}

// Runner drives the end-to-end check that a not-presented appointment leaves the statistics
type Runner struct {
	backend     interfaces.ClinicBackend
	credentials types.Credentials
	site        string
	location    *time.Location
	now         func() time.Time
	logger      *logrus.Entry

	patientID     string
	appointmentID string
	baseline      *types.StatisticsReport
}

// NewRunner creates a runner against backend for site
func NewRunner(backend interfaces.ClinicBackend, creds types.Credentials, site string, loc *time.Location, log *logger.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		backend:     backend,
		credentials: creds,
		site:        site,
		location:    loc,
		now:         time.Now,
		logger:      log.WithComponent("smoketest"),
	}
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// Run executes the sequence, stopping at the first failing step. Cleanup always runs.
func (r *Runner) Run(ctx context.Context) *Tally {
	tally := &Tally{}
	r.patientID, r.appointmentID, r.baseline = "", "", nil

	defer r.cleanup(ctx, tally)

	steps := []step{
		{"login", r.login},
		{"create PICC patient", r.createPatient},
		{"create appointment", r.createAppointment},
		{"read baseline statistics", r.readBaseline},
		{"mark appointment non_presentato", r.markNotPresented},
		{"statistics exclude non_presentato", r.checkExclusion},
		{"list today's appointments", r.checkListed},
	}

	for _, s := range steps {
		err := s.run(ctx)
		entry := r.logger.WithField("step", s.name)
		if !tally.Record(s.name, err) {
			entry.WithError(err).Error("Smoke step failed, stopping")
			return tally
		}
		entry.Info("Smoke step passed")
	}

	return tally
}

func (r *Runner) today() time.Time {
	return r.now().In(r.location)
}

func (r *Runner) login(ctx context.Context) error {
	token, err := r.backend.Login(ctx, r.credentials)
	if err != nil {
		return err
	}
	if token.AccessToken == "" {
		return fmt.Errorf("empty access token")
	}
	return nil
}

func (r *Runner) createPatient(ctx context.Context) error {
	patient, err := r.backend.CreatePatient(ctx, &types.Patient{
		Nome:        PatientNome,
		Cognome:     PatientCognome,
		Tipo:        types.TypePICC,
		Ambulatorio: r.site,
	})
	if err != nil {
		return err
	}
	r.patientID = patient.ID
	return nil
}

func (r *Runner) createAppointment(ctx context.Context) error {
	apt, err := r.backend.CreateAppointment(ctx, &types.Appointment{
		PatientID:   r.patientID,
		Ambulatorio: r.site,
		Data:        r.today().Format(types.DateLayout),
		Ora:         AppointmentOra,
		Tipo:        types.TypePICC,
		Prestazioni: append([]string(nil), Prestazioni...),
		Stato:       types.StatusToDo,
	})
	if err != nil {
		return err
	}
	r.appointmentID = apt.ID
	return nil
}

func (r *Runner) statistics(ctx context.Context) (*types.StatisticsReport, error) {
	today := r.today()
	return r.backend.GetStatistics(ctx, &types.StatisticsQuery{
		Ambulatorio: r.site,
		Anno:        today.Year(),
		Mese:        int(today.Month()),
	})
}

func (r *Runner) readBaseline(ctx context.Context) error {
	report, err := r.statistics(ctx)
	if err != nil {
		return err
	}
	if report.TotaleAccessi < 1 {
		return fmt.Errorf("da_fare appointment not counted: totale_accessi=%d", report.TotaleAccessi)
	}
	for _, code := range Prestazioni {
		if report.Prestazioni[code] < 1 {
			return fmt.Errorf("da_fare appointment not counted for %s", code)
		}
	}
	r.baseline = report
	return nil
}

func (r *Runner) markNotPresented(ctx context.Context) error {
	stato := types.StatusNotPresented
	apt, err := r.backend.UpdateAppointment(ctx, r.appointmentID, &types.AppointmentUpdates{Stato: &stato})
	if err != nil {
		return err
	}
	if apt.Stato != "" && apt.Stato != stato {
		return fmt.Errorf("backend answered stato=%q", apt.Stato)
	}
	return nil
}

func (r *Runner) checkExclusion(ctx context.Context) error {
	report, err := r.statistics(ctx)
	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"totale_accessi": report.TotaleAccessi,
		"prestazioni":    report.Prestazioni,
	}).Info("Statistics after marking non_presentato")

	if want := r.baseline.TotaleAccessi - 1; report.TotaleAccessi != want {
		return fmt.Errorf("totale_accessi=%d, want %d", report.TotaleAccessi, want)
	}
	for _, code := range Prestazioni {
		if got, want := report.Prestazioni[code], r.baseline.Prestazioni[code]-1; got != want {
			return fmt.Errorf("prestazioni[%s]=%d, want %d", code, got, want)
		}
	}
	return nil
}

func (r *Runner) checkListed(ctx context.Context) error {
	appointments, err := r.backend.ListAppointments(ctx, &types.AppointmentFilters{
		Ambulatorio: r.site,
		Data:        r.today().Format(types.DateLayout),
	})
	if err != nil {
		return err
	}

	for _, apt := range appointments {
		if apt.ID != r.appointmentID {
			continue
		}
		if apt.Stato != types.StatusNotPresented {
			return fmt.Errorf("appointment %s has stato=%q", apt.ID, apt.Stato)
		}
		return nil
	}
	return fmt.Errorf("appointment %s not listed", r.appointmentID)
}

// cleanup deletes what the run created, appointment first. It gets its own
// deadline so a run that hit its deadline still removes its records.
func (r *Runner) cleanup(ctx context.Context, tally *Tally) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CleanupTimeout)
	defer cancel()

	if r.appointmentID != "" {
		tally.Record("delete appointment", r.backend.DeleteAppointment(ctx, r.appointmentID))
	}
	if r.patientID != "" {
		tally.Record("delete patient", r.backend.DeletePatient(ctx, r.patientID))
	}
}
