package enums

// TransactionStatus tracks a checkout attempt through its lifecycle.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsTerminal reports whether the status permits no further transitions.
func (t TransactionStatus) IsTerminal() bool {
	return t == TransactionStatusCompleted || t == TransactionStatusRefunded
}
