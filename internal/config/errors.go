package config

import "errors"

// Ошибки конфигурации.
var (
	// ErrInvalidConfig — конфигурация не прошла валидацию.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnknownTable — запрошена неизвестная таблица.
	ErrUnknownTable = errors.New("unknown table")
)
