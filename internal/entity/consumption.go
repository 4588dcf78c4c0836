package entity

import "time"

// ConsumptionEntry is one point of a user's energy consumption history.
// Cost is optional: manual entries may record consumption only.
type ConsumptionEntry struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	RecordedAt     time.Time `json:"recorded_at"`
	ConsumptionKWH float64   `json:"consumption_kwh"`
	Cost           *int64    `json:"cost,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
