package models

import "errors"

// Application-wide standard errors
var (
	ErrBadRequest = errors.New("bad request")

	// Setting Property errors
	ErrSettingNotFound     = errors.New("setting property not found")
	ErrInvalidSettingValue = errors.New("invalid setting value")
	ErrUnknownSettingType  = errors.New("unknown setting type")
)
