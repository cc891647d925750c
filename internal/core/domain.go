package core

import (
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const (
	Income  EntryType = "income"
	Expense EntryType = "expense"
)

const dateLayout = "2006-01-02"

type (
	// EntryType distinguishes money coming in from money going out. It is
	// shared by transactions and categories.
	EntryType string

	// Date is a calendar day serialized as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID          int64           `json:"id"`
		CreatedAt   time.Time       `json:"created_at"`
		Date        Date            `json:"date"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Type        EntryType       `json:"type"`
		Category    string          `json:"category"`
		Subcategory string          `json:"subcategory,omitempty"`
		Platform    string          `json:"platform,omitempty"`
	}

	// Platform is an account where money is held (bank, e-wallet, cash).
	Platform struct {
		ID        int64           `json:"id"`
		CreatedAt time.Time       `json:"created_at"`
		Account   string          `json:"account"`
		Type      string          `json:"type,omitempty"`
		Balance   decimal.Decimal `json:"balance"`
	}

	Debt struct {
		ID        int64           `json:"id"`
		CreatedAt time.Time       `json:"created_at"`
		Name      string          `json:"name"`
		Amount    decimal.Decimal `json:"amount"`
		DueDate   Date            `json:"due-date"`
		Status    string          `json:"status,omitempty"`
		Notes     string          `json:"notes,omitempty"`
	}

	Goal struct {
		ID            int64           `json:"id"`
		CreatedAt     time.Time       `json:"created_at"`
		Name          string          `json:"name"`
		TargetAmount  decimal.Decimal `json:"target_amount"`
		CurrentAmount decimal.Decimal `json:"current_amount"`
		Deadline      Date            `json:"deadline"`
	}

	Budget struct {
		ID        int64           `json:"id"`
		CreatedAt time.Time       `json:"created_at"`
		Category  string          `json:"category"`
		Amount    decimal.Decimal `json:"amount"`
		Period    string          `json:"period,omitempty"`
	}

	Category struct {
		ID        int64     `json:"id"`
		CreatedAt time.Time `json:"created_at"`
		Name      string    `json:"name"`
		Type      EntryType `json:"type"`
		ParentID  *int64    `json:"parent_id"`
		IsDefault bool      `json:"is_default"`
		IsActive  bool      `json:"is_active"`
	}

	// NewCategory is the insert shape for categories; active is implied.
	NewCategory struct {
		Name      string    `json:"name"`
		Type      EntryType `json:"type"`
		ParentID  *int64    `json:"parent_id,omitempty"`
		IsDefault *bool     `json:"is_default,omitempty"`
	}

	// Subcategory is the projection embedded under a top-level category.
	Subcategory struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		Type      EntryType `json:"type"`
		IsDefault bool      `json:"is_default"`
	}

	CategoryNode struct {
		ID            int64         `json:"id"`
		Name          string        `json:"name"`
		Type          EntryType     `json:"type"`
		ParentID      *int64        `json:"parent_id"`
		IsDefault     bool          `json:"is_default"`
		Subcategories []Subcategory `json:"subcategories"`
	}
)

// Partial updates. Nil fields are left untouched.
type (
	TransactionPatch struct {
		Date        *Date            `json:"date,omitempty"`
		Description *string          `json:"description,omitempty"`
		Amount      *decimal.Decimal `json:"amount,omitempty"`
		Type        *EntryType       `json:"type,omitempty"`
		Category    *string          `json:"category,omitempty"`
		Subcategory *string          `json:"subcategory,omitempty"`
		Platform    *string          `json:"platform,omitempty"`
	}

	PlatformPatch struct {
		Account *string          `json:"account,omitempty"`
		Type    *string          `json:"type,omitempty"`
		Balance *decimal.Decimal `json:"balance,omitempty"`
	}

	DebtPatch struct {
		Name    *string          `json:"name,omitempty"`
		Amount  *decimal.Decimal `json:"amount,omitempty"`
		DueDate *Date            `json:"due-date,omitempty"`
		Status  *string          `json:"status,omitempty"`
		Notes   *string          `json:"notes,omitempty"`
	}

	GoalPatch struct {
		Name          *string          `json:"name,omitempty"`
		TargetAmount  *decimal.Decimal `json:"target_amount,omitempty"`
		CurrentAmount *decimal.Decimal `json:"current_amount,omitempty"`
		Deadline      *Date            `json:"deadline,omitempty"`
	}

	BudgetPatch struct {
		Category *string          `json:"category,omitempty"`
		Amount   *decimal.Decimal `json:"amount,omitempty"`
		Period   *string          `json:"period,omitempty"`
	}

	CategoryPatch struct {
		Name      *string    `json:"name,omitempty"`
		Type      *EntryType `json:"type,omitempty"`
		ParentID  *int64     `json:"parent_id,omitempty"`
		IsDefault *bool      `json:"is_default,omitempty"`
		IsActive  *bool      `json:"is_active,omitempty"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid type: must be income or expense")
	ErrEmptyDescription = errors.New("empty description")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyAccount     = errors.New("empty account")
	ErrEmptyName        = errors.New("empty name")
	ErrZeroDate         = errors.New("date cannot be zero")
)

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON accepts YYYY-MM-DD as well as full RFC 3339 timestamps, which
// is what some drivers hand back for DATE columns.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse(dateLayout, *s); err == nil {
		*d = Date{Time: t}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return err
	}
	y, m, day := t.Date()
	*d = NewDate(y, int(m), day)
	return nil
}

func (t EntryType) Valid() bool {
	return t == Income || t == Expense
}

func (tx Transaction) Validate() error {
	if tx.Date.IsZero() {
		return ErrZeroDate
	}
	if strings.TrimSpace(tx.Description) == "" {
		return ErrEmptyDescription
	}
	if len(tx.Description) > 200 {
		return ErrDescriptionLong
	}
	if !tx.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !tx.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(tx.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (p Platform) Validate() error {
	if strings.TrimSpace(p.Account) == "" {
		return ErrEmptyAccount
	}
	return nil
}

func (d Debt) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	if !d.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if d.DueDate.IsZero() {
		return ErrZeroDate
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if !g.TargetAmount.IsPositive() || g.CurrentAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Progress returns how much of the target has been saved, capped at 100.
func (g Goal) Progress() int {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	pct := g.CurrentAmount.Mul(decimal.NewFromInt(100)).Div(g.TargetAmount).IntPart()
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return int(pct)
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (c NewCategory) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}
