package config

// Options — параметры стадии (ключ → скалярное значение или вложенная map).
//
// Стадии читают известные им ключи, остальные игнорируются.
type Options map[string]any

// String извлекает строковое значение.
func (o Options) String(key, defaultVal string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// Float извлекает числовое значение.
func (o Options) Float(key string, defaultVal float64) float64 {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return defaultVal
}

// Int извлекает целое значение.
func (o Options) Int(key string, defaultVal int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return defaultVal
}

// Bool извлекает булево значение.
func (o Options) Bool(key string, defaultVal bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// Sub извлекает вложенные параметры. Если ключа нет, возвращает пустые Options.
func (o Options) Sub(key string) Options {
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case Options:
			return m
		case map[string]any:
			return Options(m)
		}
	}
	return Options{}
}

// Merge возвращает копию o, поверх которой записаны значения override.
// Вложенные map объединяются рекурсивно.
func (o Options) Merge(override Options) Options {
	out := make(Options, len(o)+len(override))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range override {
		base, baseIsMap := asMap(out[k])
		next, nextIsMap := asMap(v)
		if baseIsMap && nextIsMap {
			out[k] = base.Merge(next)
			continue
		}
		out[k] = v
	}
	return out
}

func asMap(v any) (Options, bool) {
	switch m := v.(type) {
	case Options:
		return m, true
	case map[string]any:
		return Options(m), true
	}
	return nil, false
}
