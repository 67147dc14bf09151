package services

import (
	"fmt"
	"strings"

	"cohort/internal/models"
)

// Identity-text eligibility thresholds. Profiles below these carry too
// little signal to embed meaningfully and are excluded from clustering and
// matching rather than polluting both with near-empty vectors.
const (
	minBackgroundChars = 20
	minExpertiseChars  = 15
)

// placeholderValues are onboarding defaults that some clients write before
// the user has filled anything in. Treated the same as blank.
var placeholderValues = map[string]bool{
	"not specified":          true,
	"n/a":                    true,
	"na":                     true,
	"none":                   true,
	"tbd":                    true,
	"to be completed":        true,
	"profile under review":   true,
	"tell us about yourself": true,
}

// BuildIdentityText concatenates the labeled identity fields in stable
// order for embedding. Availability tags are deliberately excluded: the
// identity embedding groups people by who they are, not by what they
// currently want. Returns ErrDataInsufficiency when the profile does not
// meet the eligibility thresholds.
func BuildIdentityText(p *models.Profile) (string, error) {
	if err := CheckEligibility(p); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Background: ")
	b.WriteString(strings.TrimSpace(p.Background))
	b.WriteString("\nExpertise: ")
	b.WriteString(strings.TrimSpace(p.Expertise))
	if interests := strings.TrimSpace(p.Interests); interests != "" {
		b.WriteString("\nInterests: ")
		b.WriteString(interests)
	}
	return b.String(), nil
}

// CheckEligibility reports whether a profile carries enough identity text
// to embed. Callers must treat failing profiles as ineligible for both
// clustering and similarity matching.
func CheckEligibility(p *models.Profile) error {
	background := strings.TrimSpace(p.Background)
	expertise := strings.TrimSpace(p.Expertise)

	if isPlaceholder(background) || isPlaceholder(expertise) {
		return fmt.Errorf("%w: placeholder identity text", ErrDataInsufficiency)
	}
	if len(background) < minBackgroundChars {
		return fmt.Errorf("%w: background under %d chars", ErrDataInsufficiency, minBackgroundChars)
	}
	if len(expertise) < minExpertiseChars {
		return fmt.Errorf("%w: expertise under %d chars", ErrDataInsufficiency, minExpertiseChars)
	}
	return nil
}

func isPlaceholder(s string) bool {
	return s == "" || placeholderValues[strings.ToLower(s)]
}
