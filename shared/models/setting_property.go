package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SettingPropertyTupleType — имя типа кортежа у плагина.
const SettingPropertyTupleType = "peek_abstract_chunked_data_loader.SettingPropertyTuple"

// Типы значений настройки.
const (
	SettingTypeInteger = "integer"
	SettingTypeString  = "string"
	SettingTypeBoolean = "boolean"
)

// SettingProperty — одна редактируемая настройка плагина.
// Значение хранится в одном из типизированных полей в зависимости от Type.
type SettingProperty struct {
	ID           int     `json:"id"`
	SettingID    int     `json:"settingId"`
	Key          string  `json:"key"`
	Type         string  `json:"type"`
	IntValue     *int    `json:"int_value"`
	CharValue    *string `json:"char_value"`
	BooleanValue *bool   `json:"boolean_value"`
}

// Value возвращает значение настройки в виде текста. Пустая строка — значение не задано.
func (p SettingProperty) Value() string {
	switch p.Type {
	case SettingTypeInteger:
		if p.IntValue != nil {
			return strconv.Itoa(*p.IntValue)
		}
	case SettingTypeBoolean:
		if p.BooleanValue != nil {
			return strconv.FormatBool(*p.BooleanValue)
		}
	default:
		if p.CharValue != nil {
			return *p.CharValue
		}
	}
	return ""
}

// SetValue разбирает text согласно Type. При ошибке запись не меняется.
// Пустой text для integer/boolean сбрасывает значение.
func (p *SettingProperty) SetValue(text string) error {
	switch p.Type {
	case SettingTypeInteger:
		text = strings.TrimSpace(text)
		if text == "" {
			p.IntValue = nil
			return nil
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			return fmt.Errorf("%w: %q expects an integer: %v", ErrInvalidSettingValue, p.Key, err)
		}
		p.IntValue = &v
	case SettingTypeBoolean:
		text = strings.TrimSpace(text)
		if text == "" {
			p.BooleanValue = nil
			return nil
		}
		v, err := strconv.ParseBool(text)
		if err != nil {
			return fmt.Errorf("%w: %q expects true or false: %v", ErrInvalidSettingValue, p.Key, err)
		}
		p.BooleanValue = &v
	case SettingTypeString, "":
		p.CharValue = &text
	default:
		return fmt.Errorf("%w: %q (key %q)", ErrUnknownSettingType, p.Type, p.Key)
	}
	return nil
}

// Clone делает глубокую копию, чтобы снимки не разделяли указатели.
func (p SettingProperty) Clone() SettingProperty {
	c := p
	if p.IntValue != nil {
		v := *p.IntValue
		c.IntValue = &v
	}
	if p.CharValue != nil {
		v := *p.CharValue
		c.CharValue = &v
	}
	if p.BooleanValue != nil {
		v := *p.BooleanValue
		c.BooleanValue = &v
	}
	return c
}

// CloneSettings копирует список целиком. nil остается nil.
func CloneSettings(items []SettingProperty) []SettingProperty {
	if items == nil {
		return nil
	}
	out := make([]SettingProperty, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
