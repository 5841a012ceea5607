package statistics

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

func newTestAppointment(id string, stato types.AppointmentStatus, prestazioni ...string) *types.Appointment {
	return &types.Appointment{
		ID:          id,
		PatientID:   "p-1",
		Ambulatorio: "pta_centro",
		Data:        "2025-03-14",
		Ora:         "09:00",
		Tipo:        types.TypePICC,
		Prestazioni: prestazioni,
		Stato:       stato,
	}
}

func TestCompute_SingleToDoAppointment(t *testing.T) {
	apts := []*types.Appointment{
		newTestAppointment("a1", types.StatusToDo, "medicazione_semplice", "irrigazione_catetere"),
	}

	report := Compute(apts, "pta_centro", 2025, 3)

	assert.Equal(t, 1, report.TotaleAccessi)
	assert.Equal(t, map[string]int{
		"medicazione_semplice": 1,
		"irrigazione_catetere": 1,
	}, report.Prestazioni)
	assert.Equal(t, map[string]int{"PICC": 1}, report.AccessiPerTipo)
	assert.Equal(t, "pta_centro", report.Ambulatorio)
	assert.Equal(t, 2025, report.Anno)
	assert.Equal(t, 3, report.Mese)
}

func TestCompute_NotPresentedContributesNothing(t *testing.T) {
	apts := []*types.Appointment{
		newTestAppointment("a1", types.StatusNotPresented, "medicazione_semplice", "irrigazione_catetere"),
	}

	report := Compute(apts, "pta_centro", 2025, 3)

	assert.Equal(t, 0, report.TotaleAccessi)
	require.NotNil(t, report.Prestazioni)
	assert.Empty(t, report.Prestazioni)
	require.NotNil(t, report.AccessiPerTipo)
	assert.Empty(t, report.AccessiPerTipo)
}

func TestCompute_EmptyInput(t *testing.T) {
	for _, apts := range [][]*types.Appointment{nil, {}} {
		report := Compute(apts, "pta_centro", 2025, 3)

		assert.Equal(t, 0, report.TotaleAccessi)
		require.NotNil(t, report.Prestazioni)
		assert.Empty(t, report.Prestazioni)
	}
}

func TestCompute_StatusFilter(t *testing.T) {
	tests := []struct {
		name    string
		stato   types.AppointmentStatus
		counted bool
	}{
		{"to do", types.StatusToDo, true},
		{"done", types.StatusDone, true},
		{"not presented", types.StatusNotPresented, false},
		{"cancelled", types.StatusCancelled, false},
		{"unknown", types.AppointmentStatus("in_attesa"), false},
		{"wrong case", types.AppointmentStatus("DA_FARE"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apts := []*types.Appointment{newTestAppointment("a1", tt.stato, "medicazione_semplice")}

			report := Compute(apts, "pta_centro", 2025, 3)

			if tt.counted {
				assert.Equal(t, 1, report.TotaleAccessi)
				assert.Equal(t, 1, report.Prestazioni["medicazione_semplice"])
			} else {
				assert.Equal(t, 0, report.TotaleAccessi)
				assert.Empty(t, report.Prestazioni)
			}
		})
	}
}

func TestCompute_ScopeFilter(t *testing.T) {
	otherSite := newTestAppointment("a2", types.StatusToDo, "medicazione_semplice")
	otherSite.Ambulatorio = "pta_nord"

	otherMonth := newTestAppointment("a3", types.StatusToDo, "medicazione_semplice")
	otherMonth.Data = "2025-04-01"

	otherYear := newTestAppointment("a4", types.StatusToDo, "medicazione_semplice")
	otherYear.Data = "2024-03-14"

	lastDay := newTestAppointment("a5", types.StatusDone, "medicazione_semplice")
	lastDay.Data = "2025-03-31"

	apts := []*types.Appointment{
		newTestAppointment("a1", types.StatusToDo, "medicazione_semplice"),
		otherSite, otherMonth, otherYear, lastDay,
	}

	report := Compute(apts, "pta_centro", 2025, 3)

	assert.Equal(t, 2, report.TotaleAccessi)
	assert.Equal(t, map[string]int{"medicazione_semplice": 2}, report.Prestazioni)
}

func TestCompute_TotalIsOnePerVisit(t *testing.T) {
	apts := []*types.Appointment{
		newTestAppointment("a1", types.StatusToDo, "medicazione_semplice", "irrigazione_catetere", "prelievo"),
		newTestAppointment("a2", types.StatusDone),
	}

	report := Compute(apts, "pta_centro", 2025, 3)

	assert.Equal(t, 2, report.TotaleAccessi)
	sum := 0
	for _, n := range report.Prestazioni {
		sum += n
	}
	assert.Equal(t, 3, sum)
}

func TestCompute_DuplicateAndEmptyCodes(t *testing.T) {
	apts := []*types.Appointment{
		newTestAppointment("a1", types.StatusToDo, "medicazione_semplice", "medicazione_semplice", "", "  "),
		newTestAppointment("a2", types.StatusToDo, "medicazione_semplice"),
	}

	report := Compute(apts, "pta_centro", 2025, 3)

	assert.Equal(t, 2, report.TotaleAccessi)
	assert.Equal(t, map[string]int{"medicazione_semplice": 2}, report.Prestazioni)
}

func TestComputeDetailed_Exclusions(t *testing.T) {
	noSite := newTestAppointment("m1", types.StatusToDo)
	noSite.Ambulatorio = ""

	noStatus := newTestAppointment("m2", "")

	badDate := newTestAppointment("m3", types.StatusToDo)
	badDate.Data = "14/03/2025"

	otherSiteNoStatus := newTestAppointment("m4", "")
	otherSiteNoStatus.Ambulatorio = "pta_nord"

	apts := []*types.Appointment{
		nil,
		newTestAppointment("a1", types.StatusToDo, "prelievo"),
		newTestAppointment("a2", types.StatusNotPresented, "prelievo"),
		newTestAppointment("a3", types.StatusNotPresented),
		newTestAppointment("a4", types.StatusCancelled),
		newTestAppointment("a5", "sospeso"),
		noSite, noStatus, badDate, otherSiteNoStatus,
	}

	report, excluded := ComputeDetailed(apts, "pta_centro", 2025, 3)

	assert.Equal(t, 1, report.TotaleAccessi)
	assert.Equal(t, types.Exclusions{
		types.ExcludedNotPresented:  2,
		types.ExcludedCancelled:     1,
		types.ExcludedUnknownStatus: 1,
		types.ExcludedMalformed:     3,
	}, excluded)
	assert.Equal(t, 7, excluded.Total())
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	apt := newTestAppointment("a1", types.StatusToDo, "b", "a", "b")
	before := apt.Clone()

	Compute([]*types.Appointment{apt}, "pta_centro", 2025, 3)

	assert.Equal(t, before, apt)
}

func TestCompute_Idempotent(t *testing.T) {
	apts := make([]*types.Appointment, 0, 50)
	statuses := []types.AppointmentStatus{types.StatusToDo, types.StatusDone, types.StatusNotPresented, types.StatusCancelled}
	for i := 0; i < 50; i++ {
		apts = append(apts, newTestAppointment(fmt.Sprintf("a%d", i), statuses[i%len(statuses)], fmt.Sprintf("code_%d", i%3)))
	}

	first := Compute(apts, "pta_centro", 2025, 3)
	second := Compute(apts, "pta_centro", 2025, 3)

	assert.Equal(t, first, second)
	assert.Equal(t, 26, first.TotaleAccessi)
}

func TestCompute_ConcurrentCallers(t *testing.T) {
	apts := []*types.Appointment{
		newTestAppointment("a1", types.StatusToDo, "medicazione_semplice"),
		newTestAppointment("a2", types.StatusDone, "irrigazione_catetere"),
		newTestAppointment("a3", types.StatusNotPresented, "irrigazione_catetere"),
	}
	expected := Compute(apts, "pta_centro", 2025, 3)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, expected, Compute(apts, "pta_centro", 2025, 3))
		}()
	}
	wg.Wait()
}

func TestCompute_MarkingNotPresentedRemovesExactlyOneVisit(t *testing.T) {
	apts := []*types.Appointment{
		newTestAppointment("a1", types.StatusToDo, "medicazione_semplice", "irrigazione_catetere"),
		newTestAppointment("a2", types.StatusDone, "medicazione_semplice"),
	}
	before := Compute(apts, "pta_centro", 2025, 3)

	apts[0].Stato = types.StatusNotPresented
	after := Compute(apts, "pta_centro", 2025, 3)

	assert.Equal(t, before.TotaleAccessi-1, after.TotaleAccessi)
	assert.Equal(t, before.Prestazioni["medicazione_semplice"]-1, after.Prestazioni["medicazione_semplice"])
	assert.Equal(t, 0, after.Prestazioni["irrigazione_catetere"])
	_, present := after.Prestazioni["irrigazione_catetere"]
	assert.False(t, present)
}
