package runner

import "github.com/hperssn/kioskcheck/internal/domain"

// Reconciler arbitrates the alcohol classification between feeds: the first
// recognized value wins and nothing overwrites it. Which feed sent it does
// not matter.
type Reconciler struct {
	result domain.Classification
	winner string
}

func NewReconciler() *Reconciler {
	return &Reconciler{result: domain.Undetermined}
}

// Offer returns the classification and true only for the winning event.
func (r *Reconciler) Offer(ev domain.Event) (domain.Classification, bool) {
	if r.result.Resolved() || !ev.Classified() {
		return r.result, false
	}
	r.result = ev.Alcohol
	r.winner = ev.Source
	return r.result, true
}

func (r *Reconciler) Resolved() bool {
	return r.result.Resolved()
}

func (r *Reconciler) Result() domain.Classification {
	return r.result
}

// Winner is the feed that reported the classification.
func (r *Reconciler) Winner() string {
	return r.winner
}
