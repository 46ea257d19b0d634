package domain

// ItemFailure describes one failed item inside a batch action.
type ItemFailure struct {
	Ref    string
	Reason string
}

// BatchReport aggregates the outcome of a batch action (bulk group creation,
// multi-account creation, or a broadcast). Per-item failures never abort the
// batch; they are collected here instead.
type BatchReport struct {
	ID       string
	Success  int
	Failed   int
	Failures []ItemFailure
	Links    []string
}

// Total returns the number of attempted items.
func (r BatchReport) Total() int {
	return r.Success + r.Failed
}

// AddSuccess records one succeeded item with an optional produced link.
func (r *BatchReport) AddSuccess(link string) {
	r.Success++
	if link != "" {
		r.Links = append(r.Links, link)
	}
}

// AddFailure records one failed item.
func (r *BatchReport) AddFailure(ref string, err error) {
	r.Failed++
	reason := "unknown"
	if err != nil {
		reason = err.Error()
	}
	r.Failures = append(r.Failures, ItemFailure{Ref: ref, Reason: reason})
}
