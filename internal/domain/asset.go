package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxPrecision is the largest number of decimal places a symbol may declare.
const MaxPrecision = 18

// Symbol identifies a token: an upper-case code plus its display precision.
// Two symbols interoperate only when both parts match.
type Symbol struct {
	Code      string `json:"code"`
	Precision uint8  `json:"precision"`
}

// NewSymbol builds and validates a symbol.
func NewSymbol(code string, precision uint8) (Symbol, error) {
	s := Symbol{Code: code, Precision: precision}
	if err := s.Validate(); err != nil {
		return Symbol{}, err
	}
	return s, nil
}

// Validate checks the code is 1-7 upper-case letters and the precision is in range.
func (s Symbol) Validate() error {
	if err := ValidateSymbolCode(s.Code); err != nil {
		return err
	}
	if s.Precision > MaxPrecision {
		return Validationf("invalid_symbol", "symbol precision %d exceeds %d", s.Precision, MaxPrecision)
	}
	return nil
}

// ValidateSymbolCode checks a bare symbol code.
func ValidateSymbolCode(code string) error {
	if len(code) == 0 || len(code) > 7 {
		return Validationf("invalid_symbol", "invalid symbol name %q", code)
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return Validationf("invalid_symbol", "invalid symbol name %q", code)
		}
	}
	return nil
}

func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

// ParseSymbol reads the "precision,CODE" form produced by String.
func ParseSymbol(raw string) (Symbol, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ",", 2)
	if len(parts) != 2 {
		return Symbol{}, Validationf("invalid_symbol", "symbol %q must look like 4,TOK", raw)
	}
	var precision uint8
	if _, err := fmt.Sscanf(parts[0], "%d", &precision); err != nil {
		return Symbol{}, Validationf("invalid_symbol", "invalid symbol precision %q", parts[0])
	}
	return NewSymbol(parts[1], precision)
}

// Asset is a fixed-point quantity of a symbol. Amount is expressed in the
// smallest unit, i.e. 10^-Precision of a whole token.
type Asset struct {
	Amount int64
	Symbol Symbol
}

// NewAsset creates an asset from a raw amount.
func NewAsset(amount int64, symbol Symbol) Asset {
	return Asset{Amount: amount, Symbol: symbol}
}

// IsValid reports whether the magnitude fits the ledger range and the symbol is well formed.
func (a Asset) IsValid() bool {
	return a.Amount >= -MaxAmount && a.Amount <= MaxAmount && a.Symbol.Validate() == nil
}

// SameSymbol reports whether two assets can be combined.
func (a Asset) SameSymbol(b Asset) bool {
	return a.Symbol == b.Symbol
}

// ToDecimal converts the raw amount into its human value.
func (a Asset) ToDecimal() decimal.Decimal {
	return decimal.New(a.Amount, -int32(a.Symbol.Precision))
}

// String renders the asset as "10.0000 TOK".
func (a Asset) String() string {
	return fmt.Sprintf("%s %s", a.ToDecimal().StringFixed(int32(a.Symbol.Precision)), a.Symbol.Code)
}

// ParseAsset reads "10.0000 TOK". The number of decimals written fixes the precision.
func ParseAsset(raw string) (Asset, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return Asset{}, Validationf("invalid_quantity", "asset %q must look like \"1.0000 TOK\"", raw)
	}
	amountStr, code := fields[0], fields[1]
	if strings.ContainsAny(amountStr, "eE") {
		return Asset{}, Validationf("invalid_quantity", "asset amount %q must be plain decimal", amountStr)
	}

	precision := 0
	if dot := strings.IndexByte(amountStr, '.'); dot >= 0 {
		precision = len(amountStr) - dot - 1
	}
	if precision > MaxPrecision {
		return Asset{}, Validationf("invalid_quantity", "asset %q has too many decimals", raw)
	}
	d, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Asset{}, Validationf("invalid_quantity", "invalid asset amount %q", amountStr)
	}
	symbol, err := NewSymbol(code, uint8(precision))
	if err != nil {
		return Asset{}, err
	}

	scaled := d.Shift(int32(precision))
	if !scaled.IsInteger() {
		return Asset{}, Validationf("invalid_quantity", "invalid asset amount %q", amountStr)
	}
	max := decimal.NewFromInt(MaxAmount)
	if scaled.GreaterThan(max) || scaled.LessThan(max.Neg()) {
		return Asset{}, Validationf("invalid_quantity", "asset %q out of range", raw)
	}
	return Asset{Amount: scaled.IntPart(), Symbol: symbol}, nil
}

// MustParseAsset is ParseAsset for constants and tests.
func MustParseAsset(raw string) Asset {
	a, err := ParseAsset(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return Validationf("invalid_quantity", "asset must be a string like \"1.0000 TOK\"")
	}
	parsed, err := ParseAsset(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
