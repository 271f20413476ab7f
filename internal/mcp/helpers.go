package mcp

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

type validationError struct {
	message       string
	canonicalCode string
}

func (e validationError) Error() string {
	return e.message
}

func assertNoUnknownArguments(args map[string]any, allowed map[string]struct{}) error {
	var unknown []string
	for key := range args {
		if _, ok := allowed[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return validationError{
		message:       fmt.Sprintf("unknown arguments: %s", strings.Join(unknown, ", ")),
		canonicalCode: "INVALID_FIELD",
	}
}

func parseOptionalString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", validationError{
			message:       fmt.Sprintf("%s must be a string", key),
			canonicalCode: "INVALID_FIELD",
		}
	}
	return strings.TrimSpace(value), nil
}

func parseInteger(raw any, key string) (int, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, validationError{
				message:       fmt.Sprintf("%s must be an integer", key),
				canonicalCode: "INVALID_FIELD",
			}
		}
		return int(v), nil
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, validationError{
				message:       fmt.Sprintf("%s must be an integer", key),
				canonicalCode: "INVALID_FIELD",
			}
		}
		return int(parsed), nil
	default:
		return 0, validationError{
			message:       fmt.Sprintf("%s must be an integer", key),
			canonicalCode: "INVALID_FIELD",
		}
	}
}

func parseOptionalInteger(args map[string]any, key string) (int, bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	value, err := parseInteger(raw, key)
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

func parseOptionalNumber(args map[string]any, key string) (*float64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	value, ok := raw.(float64)
	if !ok {
		return nil, validationError{
			message:       fmt.Sprintf("%s must be a number", key),
			canonicalCode: "INVALID_FIELD",
		}
	}
	return &value, nil
}

func parseOptionalUnitNumber(args map[string]any, key string) (*float64, error) {
	value, err := parseOptionalNumber(args, key)
	if err != nil || value == nil {
		return value, err
	}
	if *value < 0 || *value > 1 {
		return nil, validationError{
			message:       fmt.Sprintf("%s must be between 0 and 1", key),
			canonicalCode: "INVALID_RANGE",
		}
	}
	return value, nil
}

func parseOptionalBool(args map[string]any, key string) (*bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	value, ok := raw.(bool)
	if !ok {
		return nil, validationError{
			message:       fmt.Sprintf("%s must be a boolean", key),
			canonicalCode: "INVALID_FIELD",
		}
	}
	return &value, nil
}

// blueprintArgument extracts the blueprint document from args. It accepts
// either an inline object or a JSON-encoded string; a well-formed document
// is returned untyped for the schema validator.
func blueprintArgument(args map[string]any, key string) (any, bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, true, nil
	case string:
		var doc any
		if err := json.Unmarshal([]byte(v), &doc); err != nil {
			return nil, true, validationError{
				message:       fmt.Sprintf("%s is not valid JSON: %v", key, err),
				canonicalCode: "INVALID_FIELD",
			}
		}
		return doc, true, nil
	default:
		return nil, true, validationError{
			message:       fmt.Sprintf("%s must be an object or a JSON string", key),
			canonicalCode: "INVALID_FIELD",
		}
	}
}
