package statistics

import (
	"strings"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

// Compute builds the monthly report of site from a snapshot of appointments.
//
// Only appointments of site dated within (year, month) whose current status is
// da_fare or completato are visits. Each visit adds one to TotaleAccessi and one to
// every distinct service code it lists. Records missing a site, a status or a
// valid date are skipped. The input is never modified.
func Compute(appointments []*types.Appointment, site string, year, month int) *types.StatisticsReport {
	report, _ := ComputeDetailed(appointments, site, year, month)
	return report
}

// ComputeDetailed is Compute that also counts why in-scope appointments were left out.
// A record without a site is counted as malformed in every report.
func ComputeDetailed(appointments []*types.Appointment, site string, year, month int) (*types.StatisticsReport, types.Exclusions) {
	report := types.NewStatisticsReport(site, year, month)
	excluded := types.Exclusions{}

	for _, apt := range appointments {
		if apt == nil {
			continue
		}

		reason, inScope := classify(apt, site, year, month)
		if !inScope {
			continue
		}
		if reason != "" {
			excluded[reason]++
			continue
		}

		report.TotaleAccessi++
		if apt.Tipo != "" {
			report.AccessiPerTipo[string(apt.Tipo)]++
		}

		seen := make(map[string]struct{}, len(apt.Prestazioni))
		for _, code := range apt.Prestazioni {
			code = strings.TrimSpace(code)
			if code == "" {
				continue
			}
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			report.Prestazioni[code]++
		}
	}

	return report, excluded
}

// classify returns whether apt concerns the report scope and, if it does not
// count, the reason.
func classify(apt *types.Appointment, site string, year, month int) (types.ExclusionReason, bool) {
	if apt.Ambulatorio == "" {
		return types.ExcludedMalformed, true
	}
	if apt.Ambulatorio != site {
		return "", false
	}
	if apt.Stato == "" {
		return types.ExcludedMalformed, true
	}

	date, err := apt.Date()
	if err != nil {
		return types.ExcludedMalformed, true
	}
	if date.Year() != year || int(date.Month()) != month {
		return "", false
	}

	switch {
	case apt.Stato.Counted():
		return "", true
	case apt.Stato == types.StatusNotPresented:
		return types.ExcludedNotPresented, true
	case apt.Stato == types.StatusCancelled:
		return types.ExcludedCancelled, true
	default:
		return types.ExcludedUnknownStatus, true
	}
}
