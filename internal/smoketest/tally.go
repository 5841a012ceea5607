package smoketest

import (
	"fmt"
	"strings"
)

// Tally accumulates step outcomes of one smoke run
type Tally struct {
	Run      int      `json:"run"`
	Passed   int      `json:"passed"`
	Failures []string `json:"failures,omitempty"`
}

// Record counts a step and reports whether it passed
func (t *Tally) Record(step string, err error) bool {
	t.Run++
	if err != nil {
		t.Failures = append(t.Failures, fmt.Sprintf("%s: %v", step, err))
		return false
	}
	t.Passed++
	return true
}

// OK reports whether every recorded step passed
func (t *Tally) OK() bool {
	return t.Run > 0 && t.Passed == t.Run
}

// String renders the tally as printed by the smoke command
func (t *Tally) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tests passed: %d/%d", t.Passed, t.Run)
	for _, f := range t.Failures {
		fmt.Fprintf(&b, "\n  FAIL %s", f)
	}
	return b.String()
}
