package state

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// #region topic
// NormalizeTopic folds case, applies NFKC and joins words with underscores, so
// "Online Business", "online-business" and " ONLINE_business " share one key.
func NormalizeTopic(raw string) string {
	// A Caser is stateful; build one per call.
	folded := cases.Fold().String(norm.NFKC.String(raw))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})
	return strings.Join(words, "_")
}

// #endregion topic

// #region bucket
// NormalizeBucket maps a time of day ("9", "9:30", "09:00") to its hour bucket "HH:00".
func NormalizeBucket(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	hourPart, minPart, hasMin := strings.Cut(raw, ":")
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return "", false
	}
	if hasMin {
		m, err := strconv.Atoi(minPart)
		if err != nil || m < 0 || m > 59 || len(minPart) != 2 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:00", hour), true
}

// #endregion bucket
