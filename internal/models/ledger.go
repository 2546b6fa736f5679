package models

// Account holds the running totals of one ledger account.
// Totals are only ever incremented; the balance is derived from them.
type Account struct {
	ID             uint64 `json:"id,string" db:"id"`
	DebitsPending  uint64 `json:"debits_pending,string" db:"debits_pending"`
	DebitsPosted   uint64 `json:"debits_posted,string" db:"debits_posted"`
	CreditsPending uint64 `json:"credits_pending,string" db:"credits_pending"`
	CreditsPosted  uint64 `json:"credits_posted,string" db:"credits_posted"`
	Ledger         uint32 `json:"ledger" db:"ledger"`
	Code           uint16 `json:"code" db:"code"`
	Timestamp      uint64 `json:"timestamp,string" db:"timestamp"`
}

// Balance returns credits_posted - debits_posted. The subtraction wraps in
// two's complement, which is exact while the magnitude fits in an int64.
func (a Account) Balance() int64 {
	return int64(a.CreditsPosted - a.DebitsPosted)
}

// Transfer is an immutable, posted movement of Amount from the debit account
// to the credit account.
type Transfer struct {
	ID              uint64 `json:"id,string" db:"id"`
	DebitAccountID  uint64 `json:"debit_account_id,string" db:"debit_account_id"`
	CreditAccountID uint64 `json:"credit_account_id,string" db:"credit_account_id"`
	Amount          uint64 `json:"amount,string" db:"amount"`
	Ledger          uint32 `json:"ledger" db:"ledger"`
	Code            uint16 `json:"code" db:"code"`
	Timestamp       uint64 `json:"timestamp,string" db:"timestamp"`
}

// TransferRequest is what a caller submits to the transfer engine.
type TransferRequest struct {
	ID              uint64
	DebitAccountID  uint64
	CreditAccountID uint64
	Amount          uint64
	Ledger          uint32
	Code            uint16
}

type Balance struct {
	AccountID     uint64 `json:"account_id,string"`
	Balance       int64  `json:"balance,string"`
	CreditsPosted uint64 `json:"credits_posted,string"`
	DebitsPosted  uint64 `json:"debits_posted,string"`
}

// Direction classifies a transfer relative to the account being viewed.
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)

// ClassifiedTransfer is one history line for a given account.
type ClassifiedTransfer struct {
	Transfer
	Direction      Direction `json:"direction"`
	CounterpartyID uint64    `json:"counterparty_id,string"`
}

// TransferSide selects which leg of a transfer a query matches on.
type TransferSide int

const (
	SideDebits TransferSide = iota + 1
	SideCredits
)

// TransferFilter narrows the transfer log to one account and one side,
// newest first.
type TransferFilter struct {
	AccountID uint64
	Side      TransferSide
	Limit     int
}
