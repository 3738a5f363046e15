package classify

import (
	"context"
	"encoding/json"
	"hash/fnv"
)

// MockOracle produces deterministic classifications from a hash of the
// request text. Used when no API key is configured and in tests.
type MockOracle struct{}

func (MockOracle) Complete(_ context.Context, req Request) (string, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(req.Text))
	sum := h.Sum64()

	categories := []string{"Жалоба", "Консультация", "Смена данных", "Претензия", "Неработоспособность приложения"}
	sentiments := []string{"Нейтральный", "Негативный", "Позитивный"}
	languages := []string{"RU", "KZ", "ENG"}
	priorities := []int{3, 5, 7, 9}

	// Reduce in uint64 before converting: half of all hashes are above
	// MaxInt64 and would index negatively otherwise.
	out := map[string]any{
		"type":      categories[sum%uint64(len(categories))],
		"sentiment": sentiments[(sum/7)%uint64(len(sentiments))],
		"priority":  priorities[(sum/13)%uint64(len(priorities))],
		"language":  languages[(sum/17)%uint64(len(languages))],
		"summary":   "Автоматический ответ тестового оракула.",
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
