package extract

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Patterns target Spanish-language utility bills (EPM / Emvarias layouts).
// All matching happens over text that has already been lowercased and had
// its whitespace collapsed, so the patterns are lowercase and single-space.
var (
	reWhitespace = regexp.MustCompile(`\s+`)

	// "contrato 11706073 ... 231.222" — one match yields both the contract
	// number and the total amount, short-circuiting every other rule for
	// those two fields.
	reContractLine = regexp.MustCompile(`contrato\s+(\d+)[^\d]+([\d.,]+)`)

	rePaymentRef      = regexp.MustCompile(`referente\s*de\s*pago[:\s-]*([a-z0-9-]+)`)
	rePaymentRefLoose = regexp.MustCompile(`refer\w*\s*(?:de)?\s*pago[:\s-]*([a-z0-9-]+)`)
	reInvoiceNumber   = regexp.MustCompile(`(?:n[úu]mero|num\.?|factura|ref\.?)[:\s-]*([a-z0-9-]+)`)
	reProductNumber   = regexp.MustCompile(`producto[:\s]+(\d{6,})`)

	// Amount token within 50 chars of the label; punctuation is formatting
	// noise, stripped before integer parsing, never a decimal point.
	reTotalDue = regexp.MustCompile(`total\s*a\s*pagar[\s\S]{0,50}?(\$?\s*[\d.,]{3,})`)

	reEnergyKWH = regexp.MustCompile(`energ[ií]a\s+(\d+)\s*kwh`)
	reBareKWH   = regexp.MustCompile(`(\d+)\s*kwh`)

	reMonthYear = regexp.MustCompile(`(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)[^\d]*(\d{4})`)

	reNonDigit = regexp.MustCompile(`[^\d]`)
)

var spanishMonths = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// matcher is one rule in a field's fallback chain. It returns the extracted
// token and whether it matched; the first match in a chain wins and the
// remaining rules are never consulted.
type matcher func(text string) (string, bool)

func regexMatcher(re *regexp.Regexp) matcher {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil || strings.TrimSpace(m[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(m[1]), true
	}
}

// contractFallbacks is the ordered chain for the contract/reference number
// when the compound "contrato" line is absent. The first rule deliberately
// overlaps with the standalone payment-reference search; both fields may end
// up pointing at the same token, matching the billing formats in the wild.
var contractFallbacks = []matcher{
	regexMatcher(rePaymentRefLoose),
	regexMatcher(reInvoiceNumber),
	regexMatcher(reProductNumber),
}

// Extractor turns assembled OCR text into a structured Invoice. It performs
// no I/O; the injected clock only feeds the synthesized-identifier and
// default-date fallbacks.
type Extractor struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger, now: time.Now}
}

// NewExtractorAt builds an Extractor with a fixed clock. Used by tests and
// anywhere reproducible fallback identifiers are needed.
func NewExtractorAt(logger *slog.Logger, now func() time.Time) *Extractor {
	e := NewExtractor(logger)
	if now != nil {
		e.now = now
	}
	return e
}

// Extract never fails: every field has a defined default. Callers decide
// what a zero TotalAmount means (see Invoice.HasFinancialData).
func (e *Extractor) Extract(text string) Invoice {
	clean := strings.ToLower(reWhitespace.ReplaceAllString(text, " "))

	inv := Invoice{}

	// Payment reference is searched independently of the contract chain.
	if ref, ok := regexMatcher(rePaymentRef)(clean); ok {
		inv.PaymentReference = &ref
	}

	if m := reContractLine.FindStringSubmatch(clean); m != nil {
		contract := m[1]
		inv.ContractNumber = &contract
		inv.TotalAmount = parseAmount(m[2])
	} else {
		contract := e.fallbackContract(clean)
		inv.ContractNumber = &contract

		if m := reTotalDue.FindStringSubmatch(clean); m != nil {
			inv.TotalAmount = parseAmount(m[1])
		}
	}

	inv.ConsumptionKWH = e.consumption(clean)
	inv.BillingDate = e.billingDate(clean)

	e.logger.Debug("invoice fields extracted",
		"contract", derefOr(inv.ContractNumber, ""),
		"payment_ref", derefOr(inv.PaymentReference, ""),
		"total", inv.TotalAmount,
		"kwh", inv.ConsumptionKWH,
		"billing_date", inv.BillingDate.Format("2006-01-02"),
	)
	return inv
}

// fallbackContract walks the ordered chain and, when nothing matches,
// synthesizes an identifier from the clock so the field is never empty.
// A synthesized "F-" identifier implicitly flags that no real number was
// found on the bill.
func (e *Extractor) fallbackContract(text string) string {
	for _, m := range contractFallbacks {
		if v, ok := m(text); ok {
			return v
		}
	}
	return "F-" + strconv.FormatInt(e.now().UnixMilli(), 10)
}

func (e *Extractor) consumption(text string) float64 {
	token := "0"
	if m := reEnergyKWH.FindStringSubmatch(text); m != nil {
		token = m[1]
	} else if m := reBareKWH.FindStringSubmatch(text); m != nil {
		token = m[1]
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0
	}
	return v
}

// billingDate resolves "agosto 2024"-style mentions to the first day of that
// month; with no match the processing date stands in (best effort, not an
// error).
func (e *Extractor) billingDate(text string) time.Time {
	m := reMonthYear.FindStringSubmatch(text)
	if m == nil {
		return e.now()
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return e.now()
	}
	month, ok := spanishMonths[m[1]]
	if !ok {
		return e.now()
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// parseAmount strips every non-digit character and reads the remainder as an
// integer: "231.222" parses as 231222 and "$1.234.567" as 1234567. Grouping
// and decimal punctuation are never interpreted positionally.
func parseAmount(token string) int64 {
	digits := reNonDigit.ReplaceAllString(token, "")
	if digits == "" {
		return 0
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
