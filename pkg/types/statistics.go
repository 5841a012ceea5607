package types

// ExclusionReason explains why an appointment in scope did not count as a visit
type ExclusionReason string

const (
	ExcludedNotPresented  ExclusionReason = "not_presented"
	ExcludedCancelled     ExclusionReason = "cancelled"
	ExcludedUnknownStatus ExclusionReason = "unknown_status"
	ExcludedMalformed     ExclusionReason = "malformed"
)

// StatisticsQuery selects the site and calendar month of a report
type StatisticsQuery struct {
	Ambulatorio string `json:"ambulatorio"`
	Anno        int    `json:"anno"`
	Mese        int    `json:"mese"`
}

// Validate checks the query bounds
func (q *StatisticsQuery) Validate() error {
	details := map[string]interface{}{}
	if q.Ambulatorio == "" {
		details["ambulatorio"] = "required"
	}
	if q.Mese < 1 || q.Mese > 12 {
		details["mese"] = "must be between 1 and 12"
	}
	if q.Anno < 1900 || q.Anno > 9999 {
		details["anno"] = "must be between 1900 and 9999"
	}
	if len(details) > 0 {
		return NewValidationError(ErrCodeInvalidInput, "invalid statistics query", details)
	}
	return nil
}

// StatisticsReport is the monthly utilisation report of a site.
// Prestazioni and AccessiPerTipo are never nil.
type StatisticsReport struct {
	Ambulatorio    string         `json:"ambulatorio"`
	Anno           int            `json:"anno"`
	Mese           int            `json:"mese"`
	TotaleAccessi  int            `json:"totale_accessi"`
	Prestazioni    map[string]int `json:"prestazioni"`
	AccessiPerTipo map[string]int `json:"accessi_per_tipo"`
}

// NewStatisticsReport returns an empty report for the given scope
func NewStatisticsReport(site string, year, month int) *StatisticsReport {
	return &StatisticsReport{
		Ambulatorio:    site,
		Anno:           year,
		Mese:           month,
		Prestazioni:    map[string]int{},
		AccessiPerTipo: map[string]int{},
	}
}

// Exclusions counts in-scope appointments left out of a report, by reason
type Exclusions map[ExclusionReason]int

// Total returns the number of excluded appointments
func (e Exclusions) Total() int {
	n := 0
	for _, c := range e {
		n += c
	}
	return n
}
