package payment

import (
	"strings"
	"unicode"
)

// PhonePlan describes a national numbering plan for mobile-money payers.
type PhonePlan struct {
	CountryCode      string
	TrunkPrefix      string
	SubscriberDigits int
	// MobilePrefixes are the allowed leading digits of the subscriber number.
	MobilePrefixes []string
}

// Zambia covers Zamtel (95/75), MTN (96/76) and Airtel (97/77).
var Zambia = PhonePlan{
	CountryCode:      "260",
	TrunkPrefix:      "0",
	SubscriberDigits: 9,
	MobilePrefixes:   []string{"95", "96", "97", "75", "76", "77"},
}

var plans = map[string]PhonePlan{
	Zambia.CountryCode: Zambia,
}

// PlanFor returns the numbering plan for a country calling code.
func PlanFor(countryCode string) (PhonePlan, bool) {
	p, ok := plans[strings.TrimPrefix(countryCode, "+")]
	return p, ok
}

// Normalize canonicalises a number as typed by the user: non-digits are stripped, an
// international "00" prefix is dropped, a national trunk prefix is replaced by the
// country code, and a bare subscriber number gets the country code prepended. Anything
// else is returned as bare digits so Validate can reject it.
func (p PhonePlan) Normalize(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	digits = strings.TrimPrefix(digits, "00")

	cc, trunk, n := p.CountryCode, p.TrunkPrefix, p.SubscriberDigits
	switch {
	case strings.HasPrefix(digits, cc) && len(digits) == len(cc)+n:
		return digits
	case strings.HasPrefix(digits, cc+trunk) && len(digits) == len(cc)+len(trunk)+n:
		return cc + digits[len(cc)+len(trunk):]
	case trunk != "" && strings.HasPrefix(digits, trunk) && len(digits) == len(trunk)+n:
		return cc + digits[len(trunk):]
	case len(digits) == n && !strings.HasPrefix(digits, trunk):
		return cc + digits
	}
	return digits
}

// Validate reports whether phone, once normalised, is a mobile number of this plan. It
// is a pre-flight gate and does not replace the provider's own checks.
func (p PhonePlan) Validate(phone string) bool {
	canonical := p.Normalize(phone)
	if len(canonical) != len(p.CountryCode)+p.SubscriberDigits || !strings.HasPrefix(canonical, p.CountryCode) {
		return false
	}
	subscriber := canonical[len(p.CountryCode):]
	for _, prefix := range p.MobilePrefixes {
		if strings.HasPrefix(subscriber, prefix) {
			return true
		}
	}
	return false
}

// Normalize canonicalises phone with the Zambian plan.
func Normalize(phone string) string { return Zambia.Normalize(phone) }

// Validate checks phone against the Zambian plan.
func Validate(phone string) bool { return Zambia.Validate(phone) }

// Carrier names the mobile-money provider serving a canonical Zambian number.
func Carrier(canonical string) string {
	if len(canonical) < 5 || !strings.HasPrefix(canonical, Zambia.CountryCode) {
		return ""
	}
	switch canonical[3:5] {
	case "96", "76":
		return "MTN_MOMO"
	case "97", "77":
		return "AIRTEL_MONEY"
	case "95", "75":
		return "ZAMTEL_KWACHA"
	}
	return ""
}
