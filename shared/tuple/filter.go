package tuple

import (
	"encoding/json"
	"fmt"
)

// Filter — словарь, по которому бэкенд выбирает обработчик запроса.
// После создания фильтр не изменяется: Extend всегда возвращает новую карту.
type Filter map[string]any

// Extend объединяет несколько фильтров в новый. Ключи из последующих частей
// перекрывают предыдущие, исходные карты не модифицируются.
func Extend(parts ...Filter) Filter {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	merged := make(Filter, size)
	for _, p := range parts {
		for k, v := range p {
			merged[k] = v
		}
	}
	return merged
}

// Key возвращает каноническое представление фильтра (JSON с отсортированными ключами).
// Используется для сопоставления push-сообщений с подписками.
func (f Filter) Key() string {
	data, err := json.Marshal(f)
	if err != nil {
		// Значения, которые не сериализуются в JSON, по проводу всё равно не пройдут.
		return fmt.Sprintf("%v", map[string]any(f))
	}
	return string(data)
}

// Equal сравнивает фильтры по каноническому представлению.
func (f Filter) Equal(other Filter) bool {
	return f.Key() == other.Key()
}
