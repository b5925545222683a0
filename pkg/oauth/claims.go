package oauth

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Address is the structured OIDC address claim.
type Address struct {
	Formatted     string `json:"formatted,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	Country       string `json:"country,omitempty"`
}

// OpenIDClaim holds the standard OpenID Connect claims of a user.
// Raw keeps every claim of the source payload, including non-standard ones.
type OpenIDClaim struct {
	Subject             string   `json:"sub"`
	Name                string   `json:"name,omitempty"`
	GivenName           string   `json:"given_name,omitempty"`
	FamilyName          string   `json:"family_name,omitempty"`
	MiddleName          string   `json:"middle_name,omitempty"`
	Nickname            string   `json:"nickname,omitempty"`
	PreferredUsername   string   `json:"preferred_username,omitempty"`
	Profile             string   `json:"profile,omitempty"`
	Picture             string   `json:"picture,omitempty"`
	Website             string   `json:"website,omitempty"`
	Email               string   `json:"email,omitempty"`
	EmailVerified       bool     `json:"email_verified,omitempty"`
	Gender              string   `json:"gender,omitempty"`
	Birthdate           string   `json:"birthdate,omitempty"`
	ZoneInfo            string   `json:"zoneinfo,omitempty"`
	Locale              string   `json:"locale,omitempty"`
	PhoneNumber         string   `json:"phone_number,omitempty"`
	PhoneNumberVerified bool     `json:"phone_number_verified,omitempty"`
	Address             *Address `json:"address,omitempty"`
	UpdatedAt           int64    `json:"updated_at,omitempty"`

	Raw map[string]any `json:"-"`
}

// DecodeClaims builds an OpenIDClaim from a decoded user-info or ID token
// payload. Claims with an unexpected JSON type are left at their zero value;
// booleans and numbers sent as strings are accepted.
func DecodeClaims(payload map[string]any) *OpenIDClaim {
	c := &OpenIDClaim{Raw: make(map[string]any, len(payload))}
	for k, v := range payload {
		c.Raw[k] = v
	}

	c.Subject = stringClaim(payload, "sub")
	c.Name = stringClaim(payload, "name")
	c.GivenName = stringClaim(payload, "given_name")
	c.FamilyName = stringClaim(payload, "family_name")
	c.MiddleName = stringClaim(payload, "middle_name")
	c.Nickname = stringClaim(payload, "nickname")
	c.PreferredUsername = stringClaim(payload, "preferred_username")
	c.Profile = stringClaim(payload, "profile")
	c.Picture = stringClaim(payload, "picture")
	c.Website = stringClaim(payload, "website")
	c.Email = stringClaim(payload, "email")
	c.EmailVerified = boolClaim(payload, "email_verified")
	c.Gender = stringClaim(payload, "gender")
	c.Birthdate = stringClaim(payload, "birthdate")
	c.ZoneInfo = stringClaim(payload, "zoneinfo")
	c.Locale = stringClaim(payload, "locale")
	c.PhoneNumber = stringClaim(payload, "phone_number")
	c.PhoneNumberVerified = boolClaim(payload, "phone_number_verified")
	c.UpdatedAt = intClaim(payload, "updated_at")

	if addr, ok := payload["address"].(map[string]any); ok {
		c.Address = &Address{
			Formatted:     stringClaim(addr, "formatted"),
			StreetAddress: stringClaim(addr, "street_address"),
			Locality:      stringClaim(addr, "locality"),
			Region:        stringClaim(addr, "region"),
			PostalCode:    stringClaim(addr, "postal_code"),
			Country:       stringClaim(addr, "country"),
		}
	}

	return c
}

// ClaimsFromIDToken decodes the payload of an OIDC ID token.
//
// The signature is NOT verified: the token was received directly from the
// token endpoint over TLS and is only used for display purposes.
func ClaimsFromIDToken(idToken string) (*OpenIDClaim, error) {
	if idToken == "" {
		return nil, fmt.Errorf("empty id token")
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, mapClaims); err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}

	return DecodeClaims(mapClaims), nil
}

// String returns the claim value as a string, whatever its JSON type.
func (c *OpenIDClaim) String(name string) string {
	if c == nil {
		return ""
	}
	return stringClaim(c.Raw, name)
}

func stringClaim(m map[string]any, name string) string {
	switch v := m[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func boolClaim(m map[string]any, name string) bool {
	switch v := m[name].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

func intClaim(m map[string]any, name string) int64 {
	switch v := m[name].(type) {
	case float64:
		return int64(v)
	case json.Number:
		i, _ := v.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(v, 10, 64)
		return i
	default:
		return 0
	}
}
