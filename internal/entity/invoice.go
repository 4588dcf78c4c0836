package entity

import "time"

// Invoice is a committed utility bill for data transfer between layers.
// TotalAmount is in the smallest currency unit.
type Invoice struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	ContractNumber   *string   `json:"contract_number,omitempty"`
	PaymentReference *string   `json:"payment_reference,omitempty"`
	BillingDate      time.Time `json:"billing_date"`
	ConsumptionKWH   float64   `json:"consumption_kwh"`
	TotalAmount      int64     `json:"total_amount"`
	CreatedAt        time.Time `json:"created_at"`
}
