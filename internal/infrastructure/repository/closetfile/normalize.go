package closetfile

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
)

// The nested columns have gone through three encodings over the table's life:
//
//  1. language-native literal syntax (single-quoted dict/list rows written by
//     the original application),
//  2. JSON,
//  3. a delimited flat list (the oldest format, list-valued fields only).
//
// Loads try them in that order; first success wins, and a row that fails all
// three normalizes to an empty mapping rather than failing the whole load.
// Rows are only re-encoded (as JSON) when the table is next rewritten by a
// mutation; nothing is migrated in place.

// normalizeNested parses the cutouts column into its current mapping shape.
// List-shaped input is keyed by position ("1".."n"), matching how class
// indices were assigned when the field was list-valued.
func normalizeNested(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]string{}
	}
	if converted, ok := literalToJSON(raw); ok {
		if m, ok := decodeStringMap([]byte(converted)); ok {
			return m
		}
	}
	if m, ok := decodeStringMap([]byte(raw)); ok {
		return m
	}
	if m, ok := splitDelimited(raw); ok {
		return m
	}
	return map[string]string{}
}

// normalizeClassifications parses the classification_results column. The
// delimited fallback does not apply here (the field was never list-valued);
// corrupt rows normalize to an empty mapping.
func normalizeClassifications(raw string) map[string]domain.LabelSet {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]domain.LabelSet{}
	}
	if converted, ok := literalToJSON(raw); ok {
		if m, ok := decodeLabelMap([]byte(converted)); ok {
			return m
		}
	}
	if m, ok := decodeLabelMap([]byte(raw)); ok {
		return m
	}
	return map[string]domain.LabelSet{}
}

func decodeStringMap(data []byte) (map[string]string, bool) {
	var asMap map[string]string
	if err := json.Unmarshal(data, &asMap); err == nil && asMap != nil {
		return asMap, true
	}
	var asList []string
	if err := json.Unmarshal(data, &asList); err == nil {
		m := make(map[string]string, len(asList))
		for i, value := range asList {
			m[strconv.Itoa(i+1)] = value
		}
		return m, true
	}
	return nil, false
}

func decodeLabelMap(data []byte) (map[string]domain.LabelSet, bool) {
	var nested map[string]map[string]string
	if err := json.Unmarshal(data, &nested); err != nil || nested == nil {
		return nil, false
	}
	result := make(map[string]domain.LabelSet, len(nested))
	for key, labels := range nested {
		set := make(domain.LabelSet, len(labels))
		for category, value := range labels {
			set[domain.LabelCategory(strings.ToLower(category))] = value
		}
		result[key] = set
	}
	return result, true
}

// splitDelimited handles the oldest encoding: a bare semicolon-separated list
// of paths. Structured-looking input is rejected so it cannot shadow a merely
// corrupt literal/JSON row.
func splitDelimited(raw string) (map[string]string, bool) {
	if strings.ContainsAny(raw, "{}[]") {
		return nil, false
	}
	parts := strings.Split(raw, ";")
	m := make(map[string]string, len(parts))
	i := 0
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i++
		m[strconv.Itoa(i)] = part
	}
	if i == 0 {
		return nil, false
	}
	return m, true
}

// literalToJSON rewrites a python-style literal (single-quoted strings, None,
// True, False) into JSON. It reports false when the input cannot be a literal
// structure at all.
func literalToJSON(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "{") && !strings.HasPrefix(raw, "[") {
		return "", false
	}

	var out strings.Builder
	out.Grow(len(raw))
	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '\'', '"':
			converted, next, ok := convertString(runes, i, c)
			if !ok {
				return "", false
			}
			out.WriteString(converted)
			i = next
		default:
			if replaced, next, ok := replaceBareword(runes, i); ok {
				out.WriteString(replaced)
				i = next
				continue
			}
			out.WriteRune(c)
		}
	}
	return out.String(), true
}

// convertString re-emits the quoted string starting at runes[start] (whose
// quote rune is q) as a JSON double-quoted string, returning the index of the
// closing quote.
func convertString(runes []rune, start int, q rune) (string, int, bool) {
	var out strings.Builder
	out.WriteByte('"')
	for i := start + 1; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\\' && i+1 < len(runes):
			next := runes[i+1]
			if next == '\'' {
				out.WriteRune('\'')
			} else {
				out.WriteRune('\\')
				out.WriteRune(next)
			}
			i++
		case c == q:
			out.WriteByte('"')
			return out.String(), i, true
		case c == '"':
			out.WriteString(`\"`)
		default:
			out.WriteRune(c)
		}
	}
	return "", 0, false
}

func replaceBareword(runes []rune, i int) (string, int, bool) {
	rest := string(runes[i:])
	for literal, replacement := range map[string]string{
		"None":  "null",
		"True":  "true",
		"False": "false",
	} {
		if strings.HasPrefix(rest, literal) {
			return replacement, i + len(literal) - 1, true
		}
	}
	return "", 0, false
}
