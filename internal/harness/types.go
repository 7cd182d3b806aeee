package harness

// LoadReport is the outcome of one entity load within a step.
type LoadReport struct {
	Entity   string `json:"entity"`
	Inserted int64  `json:"inserted"`
	Updated  int64  `json:"updated"`
	Attempts int    `json:"attempts"`

	// ErrorCode is the LoadError code of a failed load.
	ErrorCode string `json:"error_code,omitempty"`

	// Error is the failure message without the wrapped cause, so that
	// snapshots stay stable across drivers.
	Error string `json:"error,omitempty"`

	// Keys lists the natural keys named by the failure, if any.
	Keys []string `json:"keys,omitempty"`
}

// StepReport records one scenario step.
type StepReport struct {
	Step  int          `json:"step"` // 1-based
	At    string       `json:"at"`
	Loads []LoadReport `json:"loads"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every step expectation and assertion matched.
	Pass bool `json:"pass"`

	// Steps contains one report per executed step, in order.
	// Used for golden comparison.
	Steps []StepReport `json:"steps"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepReport{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step report.
func (r *Result) AddStep(step StepReport) {
	r.Steps = append(r.Steps, step)
}

// Load returns the report of entity in the 1-based step, if present.
func (r *Result) Load(step int, entity string) (LoadReport, bool) {
	if step < 1 || step > len(r.Steps) {
		return LoadReport{}, false
	}
	for _, l := range r.Steps[step-1].Loads {
		if l.Entity == entity {
			return l, true
		}
	}
	return LoadReport{}, false
}
