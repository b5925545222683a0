package oauth

import (
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClaims(t *testing.T) {
	body := `{
		"sub": "248289761001",
		"name": "Jane Doe",
		"given_name": "Jane",
		"family_name": "Doe",
		"preferred_username": "j.doe",
		"email": "janedoe@example.com",
		"email_verified": true,
		"phone_number_verified": "true",
		"updated_at": 1311280970,
		"address": {"locality": "Oslo", "country": "NO"},
		"member_id": 4711
	}`

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &payload))

	claims := DecodeClaims(payload)

	assert.Equal(t, "248289761001", claims.Subject)
	assert.Equal(t, "Jane Doe", claims.Name)
	assert.Equal(t, "Jane", claims.GivenName)
	assert.Equal(t, "Doe", claims.FamilyName)
	assert.Equal(t, "j.doe", claims.PreferredUsername)
	assert.Equal(t, "janedoe@example.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.True(t, claims.PhoneNumberVerified)
	assert.Equal(t, int64(1311280970), claims.UpdatedAt)
	require.NotNil(t, claims.Address)
	assert.Equal(t, "Oslo", claims.Address.Locality)
	assert.Equal(t, "NO", claims.Address.Country)

	assert.Equal(t, "4711", claims.String("member_id"), "non-standard numeric claims are kept in Raw")
	assert.Empty(t, claims.String("missing"))
}

func TestDecodeClaims_WrongTypes(t *testing.T) {
	claims := DecodeClaims(map[string]any{
		"sub":            42.0,
		"email":          []any{"a"},
		"email_verified": "nope",
		"address":        "flat string",
	})

	assert.Equal(t, "42", claims.Subject)
	assert.Empty(t, claims.Email)
	assert.False(t, claims.EmailVerified)
	assert.Nil(t, claims.Address)
}

func TestDecodeClaims_DoesNotAliasPayload(t *testing.T) {
	payload := map[string]any{"sub": "a"}
	claims := DecodeClaims(payload)

	payload["sub"] = "b"
	assert.Equal(t, "a", claims.String("sub"))
}

func TestClaimsFromIDToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user@example.com",
		"iss":   "https://idp.example.com",
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := ClaimsFromIDToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "https://idp.example.com", claims.String("iss"))

	_, err = ClaimsFromIDToken("")
	assert.Error(t, err)

	_, err = ClaimsFromIDToken("not-a-jwt")
	assert.Error(t, err)
}
