package domain

import "time"

// Status is the canonical transaction lifecycle value owned by the backend.
// The client never computes it, only fetches and displays it.
type Status string

const (
	StatusPending           Status = "pending"
	StatusPaymentProcessing Status = "payment_processing"
	StatusPaymentConfirmed  Status = "payment_confirmed"
	StatusConvertingToUSDT  Status = "converting_to_usdt"
	StatusUSDTSent          Status = "usdt_sent"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

// statusOrder is the explicit total order over the non-failed statuses.
// StatusFailed deliberately has no entry; progress under failure is derived
// from the furthest status reached before the failure.
var statusOrder = map[Status]int{
	StatusPending:           0,
	StatusPaymentProcessing: 1,
	StatusPaymentConfirmed:  2,
	StatusConvertingToUSDT:  3,
	StatusUSDTSent:          4,
	StatusCompleted:         5,
}

// Order returns the position of s in the lifecycle total order.
// The second return value is false for StatusFailed and unknown values.
func (s Status) Order() (int, bool) {
	o, ok := statusOrder[s]
	return o, ok
}

// Terminal reports whether no further lifecycle transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProgressSteps lists the five UI-visible milestones, in lifecycle order.
// StatusPending is the pre-progress state and is not itself a step.
var ProgressSteps = [5]Status{
	StatusPaymentProcessing,
	StatusPaymentConfirmed,
	StatusConvertingToUSDT,
	StatusUSDTSent,
	StatusCompleted,
}

// StepState is the derived display state of a single progress step.
type StepState int

const (
	StepPending StepState = iota
	StepActive
	StepCompleted
	StepFailed
)

func (s StepState) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepActive:
		return "active"
	case StepCompleted:
		return "completed"
	case StepFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Step pairs a milestone with its derived display state.
type Step struct {
	Status Status    `json:"status"`
	State  StepState `json:"state"`
}

// Transaction is the authoritative record returned by the pull interface.
// The client rebuilds its view from a fresh fetch on every refresh; fields
// are never patched individually.
type Transaction struct {
	ID                 string    `json:"id"`
	Status             Status    `json:"status"`
	FiatAmount         float64   `json:"fiat_amount"`
	FiatCurrency       string    `json:"fiat_currency"`
	CryptoAmount       float64   `json:"crypto_amount"`
	ExchangeRate       float64   `json:"exchange_rate"`
	FeeAmount          float64   `json:"fee_amount"`
	FeePercent         float64   `json:"fee_percent"`
	Network            string    `json:"network"`
	DestinationAddress string    `json:"destination_address"`
	TxHash             string    `json:"tx_hash,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Statistics is the aggregate view returned by the statistics endpoint,
// consumed read-only by dashboard-style views.
type Statistics struct {
	TotalTransactions   int           `json:"total_transactions"`
	TotalFiatSpent      float64       `json:"total_fiat_spent"`
	TotalCryptoReceived float64       `json:"total_crypto_received"`
	CompletedCount      int           `json:"completed_count"`
	Recent              []Transaction `json:"recent"`
}

// RateQuote is a point-in-time conversion preview for the payment form.
type RateQuote struct {
	FiatAmount   float64   `json:"fiat_amount"`
	FiatCurrency string    `json:"fiat_currency"`
	CryptoAmount float64   `json:"crypto_amount"`
	ExchangeRate float64   `json:"exchange_rate"`
	FeeAmount    float64   `json:"fee_amount"`
	FeePercent   float64   `json:"fee_percent"`
	QuotedAt     time.Time `json:"quoted_at"`
}

// PaymentProvider selects which hosted widget executes the payment.
// Both providers are opaque external collaborators; the client only relays
// the hosted session reference they hand back.
type PaymentProvider string

const (
	ProviderCard   PaymentProvider = "card"
	ProviderOnRamp PaymentProvider = "onramp"
)

// CreatePaymentRequest initiates a payment through the selected provider.
type CreatePaymentRequest struct {
	FiatAmount         float64         `json:"fiat_amount"`
	FiatCurrency       string          `json:"fiat_currency"`
	DestinationAddress string          `json:"destination_address"`
	Network            string          `json:"network"`
	Provider           PaymentProvider `json:"provider"`
}

// CreatePaymentResponse carries the new transaction id and the provider's
// hosted widget session reference.
type CreatePaymentResponse struct {
	TransactionID string `json:"transaction_id"`
	WidgetURL     string `json:"widget_url"`
}
