package services

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used for numbers written without a country code.
const DefaultPhoneRegion = "SG"

var contactValidator = validator.New()

// NormalizePhone formats a phone number as E.164. Numbers without a country
// code are read in region (DefaultPhoneRegion when empty).
func NormalizePhone(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := phonenumbers.Parse(trimmed, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeEmail trims and lower-cases an email address and checks its syntax.
func NormalizeEmail(input string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(input))
	if e == "" {
		return "", nil
	}
	if err := contactValidator.Var(e, "email"); err != nil {
		return "", ErrInvalidEmail
	}
	return e, nil
}
