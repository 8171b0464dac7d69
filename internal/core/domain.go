package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindExpense  TransactionKind = "expense"
	KindIncome   TransactionKind = "income"
	KindTransfer TransactionKind = "transfer"

	DirectionOut TransferDirection = "out"
	DirectionIn  TransferDirection = "in"

	CategoryExpense CategoryKind = "expense"
	CategoryIncome  CategoryKind = "income"

	AccountChecking   AccountKind = "checking"
	AccountSavings    AccountKind = "savings"
	AccountCash       AccountKind = "cash"
	AccountInvestment AccountKind = "investment"

	maxDescriptionLen = 200
	maxNameLen        = 80
)

type (
	TransactionKind   string
	TransferDirection string
	CategoryKind      string
	AccountKind       string

	Money struct {
		Cents int64
	}

	User struct {
		ID           string
		Email        string
		Name         string
		PasswordHash string
		OnboardedAt  time.Time
		CreatedAt    time.Time
	}

	Account struct {
		ID             string
		UserID         string
		Name           string
		Kind           AccountKind
		InitialBalance Money
		Archived       bool
		CreatedAt      time.Time
	}

	// AccountBalance is an account with its derived balance.
	AccountBalance struct {
		Account
		Balance Money
	}

	Card struct {
		ID         string
		UserID     string
		Name       string
		ClosingDay int
		DueDay     int
		Limit      Money
		Archived   bool
		CreatedAt  time.Time
	}

	Category struct {
		ID        string
		UserID    string
		Name      string
		Kind      CategoryKind
		Color     string
		CreatedAt time.Time
	}

	// Destination is where a transaction or fixed bill lands: exactly one of
	// AccountID or CardID is set.
	Destination struct {
		AccountID string
		CardID    string
	}

	Transaction struct {
		ID              string
		UserID          string
		Kind            TransactionKind
		Amount          Money
		Date            Date
		Description     string
		CategoryID      string
		Destination     Destination
		Direction       TransferDirection // transfers only
		TransferGroupID string            // transfers only
		FixedBillID     string
		CreatedAt       time.Time
	}

	// Transfer moves money from an account to another account or a card.
	// It is persisted as two transactions sharing one transfer group id.
	Transfer struct {
		FromAccountID string
		To            Destination
		Amount        Money
		Date          Date
		Description   string
	}

	FixedBill struct {
		ID                 string
		UserID             string
		Name               string
		Amount             Money
		Day                int
		Destination        Destination
		CategoryID         string
		Active             bool
		LastProcessedMonth string
		CreatedAt          time.Time
	}

	Budget struct {
		ID         string
		UserID     string
		CategoryID string
		Month      Month
		Amount     Money
	}
)

// ErrValidation matches every input validation error through errors.Is.
var ErrValidation = errors.New("validation failed")

type validationError string

func (e validationError) Error() string { return string(e) }

func (e validationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return validationError(msg) }

var (
	ErrInvalidDay        = invalid("invalid day")
	ErrInvalidAmount     = invalid("invalid amount")
	ErrEmptyDescription  = invalid("empty description")
	ErrDescriptionLength = invalid("description too long (max 200 characters)")
	ErrEmptyName         = invalid("empty name")
	ErrNameLength        = invalid("name too long (max 80 characters)")
	ErrInvalidKind       = invalid("invalid kind")
	ErrDestinationXOR    = invalid("exactly one of account or card must be set")
	ErrIncomeToCard      = invalid("income must target an account")
	ErrSameAccount       = invalid("transfer source and destination must differ")
	ErrInvalidEmail      = invalid("invalid email")
	ErrWeakPassword      = invalid("password must be at least 8 characters")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLen {
		return ErrNameLength
	}
	return nil
}

func validateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return ErrEmptyDescription
	}
	if len(desc) > maxDescriptionLen {
		return ErrDescriptionLength
	}
	return nil
}

func validateDay(day int) error {
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	return nil
}

// Validate enforces the account XOR card rule.
func (d Destination) Validate() error {
	hasAccount := strings.TrimSpace(d.AccountID) != ""
	hasCard := strings.TrimSpace(d.CardID) != ""
	if hasAccount == hasCard {
		return ErrDestinationXOR
	}
	return nil
}

func (d Destination) IsCard() bool {
	return d.CardID != ""
}

func (k AccountKind) Valid() bool {
	switch k {
	case AccountChecking, AccountSavings, AccountCash, AccountInvestment:
		return true
	}
	return false
}

func (k CategoryKind) Valid() bool {
	return k == CategoryExpense || k == CategoryIncome
}

func (a Account) Validate() error {
	if err := validateName(a.Name); err != nil {
		return err
	}
	if !a.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

func (c Card) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if err := validateDay(c.ClosingDay); err != nil {
		return invalid("invalid closing day")
	}
	if err := validateDay(c.DueDay); err != nil {
		return invalid("invalid due day")
	}
	if c.Limit.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Category) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if !c.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

// Validate checks an expense or income transaction. Transfers are validated
// through Transfer.Validate since they are built in pairs.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(t.Description); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Destination.Validate(); err != nil {
		return err
	}
	switch t.Kind {
	case KindExpense:
	case KindIncome:
		if t.Destination.IsCard() {
			return ErrIncomeToCard
		}
	case KindTransfer:
		if t.TransferGroupID == "" {
			return invalid("transfer without group id")
		}
		if t.Direction != DirectionOut && t.Direction != DirectionIn {
			return invalid("invalid transfer direction")
		}
	default:
		return ErrInvalidKind
	}
	return nil
}

func (t Transfer) Validate() error {
	if strings.TrimSpace(t.FromAccountID) == "" {
		return invalid("transfer source account is required")
	}
	if err := t.To.Validate(); err != nil {
		return err
	}
	if t.To.AccountID == t.FromAccountID {
		return ErrSameAccount
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	return validateDescription(t.Description)
}

// Legs splits a transfer into its outgoing and incoming rows.
func (t Transfer) Legs(userID, groupID string) (out, in Transaction) {
	out = Transaction{
		UserID:          userID,
		Kind:            KindTransfer,
		Amount:          t.Amount,
		Date:            t.Date,
		Description:     t.Description,
		Destination:     Destination{AccountID: t.FromAccountID},
		Direction:       DirectionOut,
		TransferGroupID: groupID,
	}
	in = out
	in.Destination = t.To
	in.Direction = DirectionIn
	return out, in
}

func (b FixedBill) Validate() error {
	if err := validateName(b.Name); err != nil {
		return err
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if err := validateDay(b.Day); err != nil {
		return err
	}
	return b.Destination.Validate()
}

// Tag is the deterministic description used for transactions generated
// from this bill; the runner relies on it to stay idempotent.
func (b FixedBill) Tag() string {
	return "[fixed:" + b.ID + "] " + b.Name
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.CategoryID) == "" {
		return invalid("budget category is required")
	}
	if b.Month.IsZero() {
		return invalid("budget month is required")
	}
	return b.Amount.Validate()
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateCredentials(email, password string) error {
	email = NormalizeEmail(email)
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return ErrInvalidEmail
	}
	if len(password) < 8 {
		return ErrWeakPassword
	}
	return nil
}
