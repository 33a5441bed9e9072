package models_test

import (
	"encoding/json"
	"testing"

	"chunked-loader/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingProperty_SetValue(t *testing.T) {
	t.Run("Integer", func(t *testing.T) {
		p := models.SettingProperty{Key: "chunk.size", Type: models.SettingTypeInteger}
		require.NoError(t, p.SetValue(" 250 "))
		assert.Equal(t, "250", p.Value())

		err := p.SetValue("lots")
		assert.ErrorIs(t, err, models.ErrInvalidSettingValue)
		assert.Equal(t, "250", p.Value(), "value must survive a failed edit")

		require.NoError(t, p.SetValue(""))
		assert.Nil(t, p.IntValue)
		assert.Equal(t, "", p.Value())
	})

	t.Run("Boolean", func(t *testing.T) {
		p := models.SettingProperty{Key: "loader.enabled", Type: models.SettingTypeBoolean}
		require.NoError(t, p.SetValue("true"))
		assert.Equal(t, "true", p.Value())

		assert.ErrorIs(t, p.SetValue("maybe"), models.ErrInvalidSettingValue)
		assert.Equal(t, "true", p.Value())
	})

	t.Run("String and untyped", func(t *testing.T) {
		p := models.SettingProperty{Key: "a"}
		require.NoError(t, p.SetValue("2"))
		assert.Equal(t, "2", p.Value())

		s := models.SettingProperty{Key: "b", Type: models.SettingTypeString}
		require.NoError(t, s.SetValue("  spaced  "))
		assert.Equal(t, "  spaced  ", s.Value())
	})

	t.Run("Unknown type", func(t *testing.T) {
		p := models.SettingProperty{Key: "x", Type: "float"}
		assert.ErrorIs(t, p.SetValue("1.5"), models.ErrUnknownSettingType)
	})
}

func TestSettingProperty_Clone(t *testing.T) {
	v := "1"
	orig := models.SettingProperty{ID: 1, Key: "a", CharValue: &v}

	c := orig.Clone()
	require.NoError(t, c.SetValue("2"))

	assert.Equal(t, "1", orig.Value())
	assert.Equal(t, "2", c.Value())
	assert.Nil(t, models.CloneSettings(nil))
}

func TestSettingProperty_JSON(t *testing.T) {
	var p models.SettingProperty
	err := json.Unmarshal([]byte(`{"id":3,"settingId":1,"key":"chunk.size","type":"integer","int_value":500,"char_value":null,"boolean_value":null}`), &p)
	require.NoError(t, err)

	assert.Equal(t, 3, p.ID)
	assert.Equal(t, 1, p.SettingID)
	assert.Equal(t, "500", p.Value())
	assert.Nil(t, p.CharValue)
}
