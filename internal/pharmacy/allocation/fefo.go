// Package allocation implements the batch allocation policy for dispensing.
// It is pure computation over an in-memory snapshot of a medicine's batches;
// loading state and committing the resulting deductions is the caller's job.
package allocation

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidNeed is returned when the requested quantity is not positive.
// Callers are expected to validate requests before planning; this guards
// against programming errors, not user input.
var ErrInvalidNeed = errors.New("allocation: need must be positive")

// Batch is a snapshot of one batch at planning time.
type Batch struct {
	BatchNo  string
	Quantity int
	Expiry   time.Time
}

// Allocation is one planned deduction: take Quantity units from BatchNo.
type Allocation struct {
	BatchNo  string `json:"batch_no"`
	Quantity int    `json:"quantity"`
}

// InsufficientError reports that the eligible batches cannot cover the
// requested quantity. Available counts only eligible (unexpired, non-empty)
// stock; expired batches never count, whatever their quantity field says.
type InsufficientError struct {
	Requested int
	Available int
	Shortfall int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient eligible stock: requested %d, available %d, short %d",
		e.Requested, e.Available, e.Shortfall)
}

// Plan decides which batches to draw from to cover need units, consuming
// soonest-to-expire stock first (FEFO). Ties on expiry are broken by the
// order batches appear in the input, which callers keep as insertion order,
// so the same snapshot always yields the same plan.
//
// The returned allocations sum to exactly need. If eligible stock cannot
// cover need, Plan returns an InsufficientError and no allocations; partial
// plans are never produced.
func Plan(batches []Batch, need int, now time.Time) ([]Allocation, error) {
	if need <= 0 {
		return nil, ErrInvalidNeed
	}

	eligible := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if b.Quantity > 0 && b.Expiry.After(now) {
			eligible = append(eligible, b)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Expiry.Before(eligible[j].Expiry)
	})

	var plan []Allocation
	remaining := need
	for _, b := range eligible {
		if remaining == 0 {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		plan = append(plan, Allocation{BatchNo: b.BatchNo, Quantity: take})
		remaining -= take
	}

	if remaining > 0 {
		return nil, &InsufficientError{
			Requested: need,
			Available: need - remaining,
			Shortfall: remaining,
		}
	}

	return plan, nil
}
