package webhook

import "strings"

// NormalizeCandidates produces the set of phone-number spellings to try when
// matching an inbound "From" address against Account.PhoneNumber, per
// spec.md §4.9: strip "whatsapp:", "+", spaces, parens; try with/without the
// configured country prefix.
func NormalizeCandidates(from, countryCode string) []string {
	stripped := strings.TrimPrefix(from, "whatsapp:")
	stripped = strings.NewReplacer("+", "", " ", "", "(", "", ")", "", "-", "").Replace(stripped)

	seen := map[string]bool{stripped: true}
	candidates := []string{stripped}

	if countryCode != "" {
		if strings.HasPrefix(stripped, countryCode) {
			without := strings.TrimPrefix(stripped, countryCode)
			if !seen[without] {
				seen[without] = true
				candidates = append(candidates, without)
			}
		} else if !seen[countryCode+stripped] {
			seen[countryCode+stripped] = true
			candidates = append(candidates, countryCode+stripped)
		}

		// A leading local-dialing zero is commonly dropped when prefixing
		// the country code (e.g. "0501234567" -> "971501234567").
		if strings.HasPrefix(stripped, "0") {
			withoutZero := countryCode + strings.TrimPrefix(stripped, "0")
			if !seen[withoutZero] {
				seen[withoutZero] = true
				candidates = append(candidates, withoutZero)
			}
		}
	}

	return candidates
}
