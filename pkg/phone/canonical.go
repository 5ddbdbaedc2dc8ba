// Package phone turns raw member and chat phone strings into comparable keys.
package phone

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// DomesticCountryCode is prefixed to numbers that were not supplied in international form.
const DomesticCountryCode = "55"

// areaCodeEnd is the index right after "55" plus the two-digit area code.
const areaCodeEnd = len(DomesticCountryCode) + 2

// Digits keeps only the decimal digits of raw.
func Digits(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
}

// Canonical normalizes a raw phone string. A leading "+" marks the number as already
// international; anything else is treated as domestic.
func Canonical(raw string) string {
	trimmed := strings.TrimSpace(raw)
	digits := Digits(trimmed)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "+") {
		return digits
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return ""
	}
	return DomesticCountryCode + digits
}

// IsBrazilian reports whether the canonical key uses Brazilian numbering.
func IsBrazilian(key string) bool {
	return strings.HasPrefix(key, DomesticCountryCode) && len(key) > areaCodeEnd
}

// Variants returns the keys a canonical phone must be indexed under. Brazilian keys yield
// the key as supplied, the key without the ninth digit and the key with a ninth digit
// inserted after the area code. Every other key is returned alone.
func Variants(key string) []string {
	if key == "" {
		return nil
	}
	if !IsBrazilian(key) {
		return []string{key}
	}
	without := key[:areaCodeEnd] + key[areaCodeEnd+1:]
	with := key[:areaCodeEnd] + "9" + key[areaCodeEnd:]
	return []string{key, without, with}
}

// SameKey reports whether two canonical keys can refer to the same subscriber.
func SameKey(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	for _, v := range Variants(a) {
		if v == b {
			return true
		}
	}
	for _, v := range Variants(b) {
		if v == a {
			return true
		}
	}
	return false
}

// Display formats a canonical key for humans. Keys that libphonenumber rejects are returned as-is.
func Display(key string) string {
	if key == "" {
		return ""
	}
	num, err := phonenumbers.Parse("+"+key, "BR")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return key
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}
