// Package normalize canonicalizes the free-form values that arrive from
// spreadsheets and from the classification oracle: categories, languages,
// segments, office names, roles, skills. All comparisons elsewhere in the
// engine run on canonical values.
package normalize

import "strings"

// Category maps oracle output (Russian or English) to the canonical
// category set. Unknown values are returned trimmed, which downstream
// validation rejects.
func Category(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "complaint", "жалоба":
		return "Complaint"
	case "change of data", "смена данных":
		return "Change of data"
	case "consultation", "консультация":
		return "Consultation"
	case "claim", "претензия":
		return "Claim"
	case "technical issue", "неработоспособность приложения":
		return "Technical issue"
	case "fraud", "мошеннические действия":
		return "Fraud"
	case "spam", "спам":
		return "Spam"
	default:
		return strings.TrimSpace(value)
	}
}

func KnownCategory(canonical string) bool {
	switch canonical {
	case "Complaint", "Change of data", "Consultation", "Claim", "Technical issue", "Fraud", "Spam":
		return true
	}
	return false
}

// Sentiment accepts both grammatical genders of the Russian labels: models
// agree the adjective with "тон" or "тональность" and return either form.
func Sentiment(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "positive", "позитивный", "позитивная":
		return "Positive"
	case "neutral", "нейтральный", "нейтральная":
		return "Neutral"
	case "negative", "негативный", "негативная":
		return "Negative"
	default:
		return strings.TrimSpace(value)
	}
}

func KnownSentiment(canonical string) bool {
	return canonical == "Positive" || canonical == "Neutral" || canonical == "Negative"
}

func Language(value string) string {
	v := strings.ToUpper(strings.TrimSpace(value))
	switch v {
	case "RU", "RUS", "RUSSIAN":
		return "RU"
	case "KZ", "KAZ", "KAZAKH":
		return "KZ"
	case "EN", "ENG", "ENGLISH":
		return "ENG"
	default:
		return v
	}
}

func KnownLanguage(canonical string) bool {
	return canonical == "RU" || canonical == "KZ" || canonical == "ENG"
}

func Segment(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case v == "":
		return "MASS"
	case strings.Contains(v, "vip"), strings.Contains(v, "преми"):
		return "VIP"
	case strings.Contains(v, "priority"), strings.Contains(v, "приори"):
		return "PRIORITY"
	case strings.Contains(v, "mass"), strings.Contains(v, "масс"), strings.Contains(v, "standard"):
		return "MASS"
	default:
		return strings.ToUpper(strings.TrimSpace(value))
	}
}

// Office folds the bilingual spellings of the two metro offices into stable
// enum names; anything else passes through trimmed.
func Office(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}
	if strings.Contains(v, "астан") || strings.Contains(v, "astan") ||
		strings.Contains(v, "nur-sultan") || strings.Contains(v, "nursultan") {
		return "ASTANA"
	}
	if strings.Contains(v, "алмат") || strings.Contains(v, "almat") {
		return "ALMATY"
	}
	return strings.TrimSpace(value)
}

// Role collapses whitespace and maps the senior-specialist spellings
// ("Глав спец", "главный специалист") to the canonical role.
func Role(value string) string {
	v := strings.Join(strings.Fields(value), " ")
	if v == "" {
		return ""
	}
	l := strings.ToLower(v)
	if strings.Contains(l, "глав") && strings.Contains(l, "спец") {
		return "Глав спец"
	}
	return v
}

// Skills splits a comma/semicolon separated skill list and uppercases
// language tags. Duplicates are removed, order preserved.
func Skills(raw string) []string {
	raw = strings.ReplaceAll(raw, ";", ",")
	seen := map[string]struct{}{}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		upper := Language(p)
		if !KnownLanguage(upper) {
			upper = strings.ToUpper(p)
		}
		if _, ok := seen[upper]; ok {
			continue
		}
		seen[upper] = struct{}{}
		out = append(out, upper)
	}
	return out
}

func HasSkill(skills []string, target string) bool {
	for _, s := range skills {
		if strings.EqualFold(strings.TrimSpace(s), target) {
			return true
		}
	}
	return false
}
