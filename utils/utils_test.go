package utils_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := utils.NewValidationError(map[string]string{"quantity": "must be greater than or equal to 0", "name": "is required"})
	assert.Equal(t, "validation failed: name: is required, quantity: must be greater than or equal to 0", err.Error())
	assert.True(t, utils.IsDomainError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, utils.IsDomainError(errors.New("disk full")))
}

func TestConflictErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("update: %w", &utils.ConflictError{Kind: "project_cost", Id: 3, ExpectedVersion: 2})
	assert.ErrorIs(t, err, utils.ErrorConcurrencyConflict)
	assert.NotErrorIs(t, err, utils.ErrorRecordNotFound)
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		Name     string           `json:"name" validate:"required,max=5"`
		Quantity *decimal.Decimal `json:"quantity" validate:"omitempty,gte=0"`
		Phone    *string          `json:"phone" validate:"omitempty,phone"`
	}
	neg := decimal.NewFromInt(-1)
	err := utils.ValidateStruct(&input{Name: "too long", Quantity: &neg, Phone: utils.NewString("123")})
	var ve *utils.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must be at most 5 characters", ve.Fields["name"])
	assert.Contains(t, ve.Fields, "quantity")
	assert.Equal(t, "must be a valid phone number", ve.Fields["phone"])

	ok := decimal.NewFromInt(3)
	assert.NoError(t, utils.ValidateStruct(&input{Name: "Villa", Quantity: &ok}))
}

func TestCheckMoney(t *testing.T) {
	fields := map[string]string{}
	utils.CheckMoney(fields, "amount", utils.NewDecimal(decimal.RequireFromString("1.25")))
	assert.Empty(t, fields)
	utils.CheckMoney(fields, "amount", utils.NewDecimal(decimal.RequireFromString("1.255")))
	assert.Equal(t, "must have at most 2 decimal places", fields["amount"])
}

func TestComparisons(t *testing.T) {
	assert.True(t, utils.SameDecimal(utils.NewDecimal(decimal.RequireFromString("10")), utils.NewDecimal(decimal.RequireFromString("10.00"))))
	assert.False(t, utils.SameDecimal(nil, utils.NewDecimal(decimal.Zero)))
	assert.False(t, utils.SameString(nil, utils.NewString("")))

	a, err := utils.ParseDate(utils.NewString("2025-04-01"))
	require.NoError(t, err)
	b, err := utils.ParseDate(utils.NewString(" 2025-04-01 "))
	require.NoError(t, err)
	assert.True(t, utils.SameDate(a, b))

	none, err := utils.ParseDate(utils.NewString(""))
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = utils.ParseDate(utils.NewString("01/04/2025"))
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hashed, err := utils.HashPassword("secret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "secret-password", hashed)
	assert.NoError(t, utils.ComparePassword(hashed, "secret-password"))
	assert.Error(t, utils.ComparePassword(hashed, "other"))
}

func TestJwtRoundTrip(t *testing.T) {
	token, err := utils.JwtGenerate(42, "alice@example.com")
	require.NoError(t, err)

	parsed, err := utils.JwtValidate(token)
	require.NoError(t, err)
	claim, ok := parsed.Claims.(*utils.JwtCustomClaim)
	require.True(t, ok)
	assert.Equal(t, 42, claim.ID)
	assert.Equal(t, "alice@example.com", claim.Email)

	_, err = utils.JwtValidate(token + "x")
	assert.Error(t, err)
}
