package alarm

// ResultStatus classifies the outcome for one (task, date) in a batch.
type ResultStatus string

const (
	StatusScheduled ResultStatus = "scheduled"
	StatusSkipped   ResultStatus = "skipped" // not due, no start time, not eligible
	StatusFailed    ResultStatus = "failed"
)

// TaskResult is one line of a batch report.
type TaskResult struct {
	TaskID  string
	Title   string
	DateKey string
	Status  ResultStatus
	Reason  string // skip reason or error text
}

// Report aggregates a scheduling batch. Failures on individual tasks/dates
// are captured here and never abort sibling iterations.
type Report struct {
	Scheduled int
	Total     int
	Results   []TaskResult
}

func (r *Report) add(res TaskResult) {
	r.Total++
	if res.Status == StatusScheduled {
		r.Scheduled++
	}
	r.Results = append(r.Results, res)
}

// Failed returns only the failed entries.
func (r *Report) Failed() []TaskResult {
	var out []TaskResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Merge folds another report into this one.
func (r *Report) Merge(other Report) {
	r.Scheduled += other.Scheduled
	r.Total += other.Total
	r.Results = append(r.Results, other.Results...)
}
