package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAsset(t *testing.T) {
	a, err := ParseAsset("10.5000 TOK")
	require.NoError(t, err)
	assert.Equal(t, int64(105_000), a.Amount)
	assert.Equal(t, Symbol{Code: "TOK", Precision: 4}, a.Symbol)
	assert.Equal(t, "10.5000 TOK", a.String())
}

func TestParseAsset_Integer(t *testing.T) {
	a, err := ParseAsset("100 TOK")
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.Amount)
	assert.Equal(t, uint8(0), a.Symbol.Precision)
}

func TestParseAsset_Invalid(t *testing.T) {
	cases := []string{"", "10", "10 tok", "10 TOOLONGX", "abc TOK", "1.0000000000000000000 TOK", "9999999999999999999 TOK",
		"1.5e-1 TOK", "1e-3 TOK", "2E2 TOK"}
	for _, raw := range cases {
		_, err := ParseAsset(raw)
		assert.Error(t, err, raw)
		assert.Equal(t, KindValidation, KindOf(err), raw)
	}
}

func TestAsset_ToDecimal(t *testing.T) {
	a := NewAsset(1_234_567, Symbol{Code: "INK", Precision: 4})
	assert.Equal(t, "123.4567", a.ToDecimal().String())
}

func TestAsset_JSON(t *testing.T) {
	in := MustParseAsset("3.25 USD")
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `"3.25 USD"`, string(raw))

	var out Asset
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestSymbol_ParseAndValidate(t *testing.T) {
	s, err := ParseSymbol("4,TOK")
	require.NoError(t, err)
	assert.Equal(t, "4,TOK", s.String())

	_, err = ParseSymbol("TOK")
	assert.Error(t, err)
	_, err = NewSymbol("T0K", 4)
	assert.Error(t, err)
	_, err = NewSymbol("TOK", 19)
	assert.Error(t, err)
}

func TestName_Validate(t *testing.T) {
	for _, ok := range []string{"alice", "bob.bank", "a1b2c3d4e5", "z"} {
		assert.NoError(t, Name(ok).Validate(), ok)
	}
	for _, bad := range []string{"", "Alice", "bob6", "thirteenchars", "bob.", "b_b"} {
		assert.Error(t, Name(bad).Validate(), bad)
	}
}

func TestAuthorization_Require(t *testing.T) {
	auth := NewAuthorization("alice", "bank")
	assert.True(t, auth.Has("alice"))
	assert.False(t, auth.Has("bob"))
	assert.Equal(t, []Name{"alice", "bank"}, auth.Signers())

	assert.NoError(t, auth.Require("bob", "bank"))
	err := auth.Require("bob", "carol")
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.True(t, errors.Is(err, ErrMissingAuthority))
	assert.Contains(t, err.Error(), "bob or carol")
}

func TestErrors_KindAndIs(t *testing.T) {
	err := &TooEarlyError{NextEligible: time.Unix(0, 0), RemainingDays: 3}
	assert.True(t, errors.Is(err, ErrTooEarly))
	assert.Equal(t, KindState, KindOf(err))
	assert.Equal(t, "too_early", CodeOf(err))
	assert.Equal(t, "cannot charge yet, 3 days remaining", err.Error())

	wrapped := Statef(ErrInsufficientFunds.Code, "overdrawn balance for %s", "alice")
	assert.True(t, errors.Is(wrapped, ErrInsufficientFunds))
	assert.False(t, errors.Is(wrapped, ErrContractEnded))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestValidateMemo(t *testing.T) {
	assert.NoError(t, ValidateMemo(string(make([]byte, MaxMemoBytes))))
	assert.ErrorIs(t, ValidateMemo(string(make([]byte, MaxMemoBytes+1))), ErrMemoTooLong)
}
