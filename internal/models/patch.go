package models

import "time"

// StatusPatch is a committed-or-about-to-commit status change. Stores apply
// it only while the order still has status From.
type StatusPatch struct {
	OrderID         string
	From            Status
	To              Status
	Entry           HistoryEntry
	RiderID         string
	RejectionReason string
	DeliveredAt     *time.Time
	UpdatedAt       time.Time
}

// ApplyTo mutates o the way the store does on commit
func (p *StatusPatch) ApplyTo(o *Order) {
	o.Status = p.To
	o.StatusHistory = append(o.StatusHistory, p.Entry)
	if p.RiderID != "" {
		o.RiderID = p.RiderID
	}
	if p.RejectionReason != "" {
		o.RejectionReason = p.RejectionReason
	}
	if p.DeliveredAt != nil {
		o.DeliveredAt = p.DeliveredAt
	}
	o.UpdatedAt = p.UpdatedAt
}
