package core

import (
	"reflect"
	"strings"
)

// textMedicalFields are free-text fields where patients type "none" or "no"
// to say a condition is absent.  Those answers carry no information and are
// dropped rather than stored.  Selection fields like lung_congestion keep
// their "none" option: there it is a real finding.
var textMedicalFields = map[string]bool{
	"infection_type":      true,
	"medical_condition":   true,
	"symptoms":            true,
	"complications":       true,
	"allergies":           true,
	"current_medications": true,
	"ecg_findings":        true,
}

// absenceWords are the spellings of "nothing to report" accepted in the
// free-text medical fields above.
var absenceWords = map[string]bool{
	"none":           true,
	"no":             true,
	"normal":         true,
	"n/a":            true,
	"na":             true,
	"not applicable": true,
	"nil":            true,
	"nothing":        true,
}

// IsValid reports whether a field value is meaningful enough to persist.
// Rules, in order: nil is invalid; a string is invalid iff blank after
// trimming; a mapping is invalid iff empty; a sequence is invalid iff empty;
// everything else (numbers, booleans, populated structures) is valid.
// Pure — no side effects, same answer for the same value.
func IsValid(value interface{}) bool {
	if value == nil {
		return false
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case map[string]interface{}:
		return len(v) > 0
	case []interface{}:
		return len(v) > 0
	}
	// Non-JSON map/slice shapes (typed maps, typed slices) follow the same
	// emptiness rules.
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return IsValid(rv.Elem().Interface())
	}
	return true
}

// IsValidField applies IsValid plus field-aware rules: for free-text medical
// condition fields, "none"-style answers are invalid; ecg_available keeps
// "no" because it answers whether an ECG exists, not what it showed.
func IsValidField(field string, value interface{}) bool {
	if !IsValid(value) {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return true
	}
	cleaned := strings.ToLower(strings.TrimSpace(s))
	if field == "ecg_available" && cleaned == "no" {
		return true
	}
	if textMedicalFields[field] && absenceWords[cleaned] {
		return false
	}
	return true
}

// CleanValue strips the UI's trailing "-A" (auto-filled) or "-O" (override)
// markers from string values so they never reach storage.
func CleanValue(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if strings.HasSuffix(s, "-A") || strings.HasSuffix(s, "-O") {
		return s[:len(s)-2]
	}
	return value
}

// FilterFields returns a new map holding only the fields whose values pass
// IsValidField, with string markers cleaned.  A nil or fully-filtered input
// yields an empty, non-nil map.
func FilterFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for name, value := range fields {
		if IsValidField(name, value) {
			out[name] = CleanValue(value)
		}
	}
	return out
}
