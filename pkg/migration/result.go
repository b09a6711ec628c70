package migration

type Status string

const (
	StatusSucceeded          Status = "succeeded"
	StatusPartiallySucceeded Status = "partially_succeeded"
	StatusFailed             Status = "failed"
	StatusNothingToMigrate   Status = "nothing_to_migrate"
	StatusDryRun             Status = "dry_run"
)

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome is the replay result of one matched digest.
type Outcome struct {
	ExtrinsicIndex int           `csv:"extrinsic_index"`
	Digest         string        `csv:"digest"`
	StorageKey     string        `csv:"storage_key"`
	Status         OutcomeStatus `csv:"status"`
	TxStatus       string        `csv:"tx_status"`
	Nonce          uint32        `csv:"nonce"`
	ExtrinsicHash  string        `csv:"extrinsic_hash"`
	InclusionBlock string        `csv:"inclusion_block"`
	Reason         string        `csv:"reason"`

	Err error `csv:"-"`
}

// Result summarizes one Migrate call over all matched digests.
type Result struct {
	BlockNumber uint64
	BlockHash   string
	Status      Status
	Outcomes    []Outcome

	// Partial is set when some, but not all, digests failed.
	Partial *PartialMigrationError
}

func (r *Result) Succeeded() int {
	return r.count(OutcomeSuccess)
}

func (r *Result) Failed() int {
	return r.count(OutcomeFailed)
}

func (r *Result) count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

func (r *Result) failures() []Outcome {
	var failures []Outcome
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			failures = append(failures, o)
		}
	}
	return failures
}

// aggregate derives Status and Partial from the outcomes.
func (r *Result) aggregate() {
	failed, succeeded := r.Failed(), r.Succeeded()
	r.Partial = nil
	switch {
	case len(r.Outcomes) == 0:
		r.Status = StatusNothingToMigrate
	case failed == 0 && succeeded == 0:
		r.Status = StatusDryRun
	case failed == 0:
		r.Status = StatusSucceeded
	case succeeded == 0:
		r.Status = StatusFailed
	default:
		r.Status = StatusPartiallySucceeded
		r.Partial = &PartialMigrationError{Succeeded: succeeded, Failures: r.failures()}
	}
}
