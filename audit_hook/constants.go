package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionWalletCreated = "wallet.created"

	// Settlement actions
	ActionTokenMinted      = "token.minted"
	ActionTokenTransferred = "token.transferred"
	ActionTokenBurned      = "token.burned"

	// Ownership actions
	ActionOwnerChanged = "owner.changed"
)

// Resource constants for audit events.
const (
	ResourceWallet   = "wallet"
	ResourceTransfer = "transfer"
	ResourceOwner    = "owner"
)

// Category constants for audit events.
const (
	CategoryAccount    = "account"
	CategorySettlement = "settlement"
	CategoryGovernance = "governance"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
