// Package payload reads fields out of loosely-typed provider payloads using
// JSONPath expressions.
package payload

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	lru "github.com/hashicorp/golang-lru/v2"
)

type evaluator func(ctx context.Context, doc any) (any, error)

// compiled holds parsed expressions so each path is parsed once per process
// rather than once per field per record.
var compiled, _ = lru.New[string, evaluator](1024)

func compile(path string) (evaluator, error) {
	if eval, ok := compiled.Get(path); ok {
		return eval, nil
	}
	eval, err := jsonpath.New(path)
	if err != nil {
		return nil, err
	}
	compiled.Add(path, evaluator(eval))
	return evaluator(eval), nil
}

// Compile checks that path is a valid JSONPath expression and caches the
// parsed form for Lookup. An empty path is valid and means "field not
// mapped".
func Compile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := compile(path); err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	return nil
}

// Lookup evaluates path against doc. It reports false when the path is not
// mapped or invalid, the key is absent or the value is JSON null.
func Lookup(path string, doc map[string]any) (any, bool) {
	if path == "" || doc == nil {
		return nil, false
	}
	eval, err := compile(path)
	if err != nil {
		return nil, false
	}
	v, err := eval(context.Background(), doc)
	if err != nil || v == nil {
		// jsonpath reports unknown keys as errors
		return nil, false
	}
	return v, true
}

// String returns the field as a string. Numbers are rendered in their JSON
// form and for a list the first non-empty element is used, so a category
// sent as ["Travel", "Airlines"] reads as "Travel".
func String(path string, doc map[string]any) (string, bool) {
	v, ok := Lookup(path, doc)
	if !ok {
		return "", false
	}
	s := stringify(v)
	return s, s != ""
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		for _, item := range x {
			if s := stringify(item); s != "" {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}
