package extract

import "time"

// Invoice is the structured result of field extraction over recognized text.
// Amounts are kept in the smallest currency unit; a TotalAmount of zero is
// the sentinel for "no financial data found" and must never be committed as
// a real financial record.
type Invoice struct {
	ContractNumber   *string   `json:"contract_number"`
	PaymentReference *string   `json:"payment_reference"`
	TotalAmount      int64     `json:"total_amount"`
	ConsumptionKWH   float64   `json:"consumption_kwh"`
	BillingDate      time.Time `json:"billing_date"`
}

// HasFinancialData reports whether the extraction produced a usable amount.
func (inv Invoice) HasFinancialData() bool {
	return inv.TotalAmount > 0
}
