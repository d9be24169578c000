package ledger

import (
	"slices"

	"github.com/StewieC/DApp-PropertyVault/internal/models"
)

// OwnerEntry is one payment in the owner's history, annotated with the
// record it belongs to.
type OwnerEntry struct {
	models.PaymentFact
	RoomLabel string
	Tenant    string
}

// Totals summarizes a set of payments.
type Totals struct {
	Payments  int
	Paid      int64
	Saved     int64
	Forwarded int64
}

// newestFirst orders by timestamp descending; equal timestamps fall back to
// emission order, later emission first.
func newestFirst(a, b models.PaymentFact) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.Seq > b.Seq:
		return -1
	case a.Seq < b.Seq:
		return 1
	}
	return 0
}

// TenantHistory projects the payments of one record, newest first.
// The input is not modified.
func TenantHistory(facts []models.PaymentFact, propertyID uint64) []models.PaymentFact {
	out := make([]models.PaymentFact, 0)
	for _, f := range facts {
		if f.PropertyID == propertyID {
			out = append(out, f)
		}
	}
	slices.SortStableFunc(out, newestFirst)
	return out
}

// OwnerHistory projects the payments of every given record, newest first.
// Facts for records not in the list are left out.
func OwnerHistory(facts []models.PaymentFact, records []models.Property) []OwnerEntry {
	byID := make(map[uint64]*models.Property, len(records))
	for i := range records {
		byID[records[i].ID] = &records[i]
	}

	out := make([]OwnerEntry, 0, len(facts))
	for _, f := range facts {
		p, ok := byID[f.PropertyID]
		if !ok {
			continue
		}
		out = append(out, OwnerEntry{PaymentFact: f, RoomLabel: p.RoomLabel, Tenant: p.Tenant})
	}
	slices.SortStableFunc(out, func(a, b OwnerEntry) int {
		return newestFirst(a.PaymentFact, b.PaymentFact)
	})
	return out
}

// Summarize totals a set of payments.
func Summarize(facts []models.PaymentFact) Totals {
	var t Totals
	for _, f := range facts {
		t.Payments++
		t.Paid += f.Amount
		t.Saved += f.SavedForOwner
		t.Forwarded += f.OwnerPortion
	}
	return t
}

// PaymentsOf strips the annotations from owner entries.
func PaymentsOf(entries []OwnerEntry) []models.PaymentFact {
	out := make([]models.PaymentFact, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.PaymentFact)
	}
	return out
}
