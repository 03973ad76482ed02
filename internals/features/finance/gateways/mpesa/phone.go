package mpesa

import (
	"regexp"
	"strings"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
)

var mobileRe = regexp.MustCompile(`^254[17][0-9]{8}$`)

// NormalizePhone turns 0712345678, +254712345678, 712345678 and
// 254712345678 into 254712345678.
func NormalizePhone(raw string) (string, error) {
	s := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")
	switch {
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "254" + s[1:]
	case len(s) == 9 && (s[0] == '7' || s[0] == '1'):
		s = "254" + s
	}
	if !mobileRe.MatchString(s) {
		return "", finerr.NewValidationError("payer_contact", "must be a Kenyan mobile number")
	}
	return s, nil
}

// NormalizeContact lets the checkout service store the canonical number.
func (a *Adapter) NormalizeContact(contact string) (string, error) {
	return NormalizePhone(contact)
}
