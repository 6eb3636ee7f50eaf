package llm

import "context"

// InvoiceFields is the normalized shape we want from the model.
type InvoiceFields struct {
	VendorName    string     `json:"vendor_name"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	InvoiceDate   string     `json:"invoice_date"` // YYYY-MM-DD
	DueDate       string     `json:"due_date,omitempty"`
	Subtotal      string     `json:"subtotal,omitempty"` // decimal
	Tax           string     `json:"tax,omitempty"`      // decimal
	Total         string     `json:"total"`              // decimal
	CurrencyCode  string     `json:"currency_code"`      // ISO 4217
	LineItems     []LineItem `json:"line_items,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

// LineItem is a single billed position on the invoice.
type LineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
	UnitPrice   string `json:"unit_price,omitempty"`
	Amount      string `json:"amount"`
}

// ExtractRequest carries one file's bytes plus prompt context for a single
// (file, model) attempt.
type ExtractRequest struct {
	Model           string
	FileBytes       []byte
	MimeType        string
	FilenameHint    string
	DefaultCurrency string
}

// Extractor is the interface the invoker depends on. Implementations return
// the raw response text; parsing and fallback handling happen in the caller.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) ([]byte, error)
}
