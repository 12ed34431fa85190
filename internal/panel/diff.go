package panel

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// rowLines renders v as sorted "key: value" lines.
func rowLines(v any) []string {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		val := fields[k]
		if val == nil {
			val = "NULL"
		}
		lines = append(lines, fmt.Sprintf("%s: %v\n", k, val))
	}
	return lines
}

// rowDiff returns a unified diff of two rows, empty when they are equal.
func rowDiff(name string, before, after any) string {
	a, b := rowLines(before), rowLines(after)
	if strings.Join(a, "") == strings.Join(b, "") {
		return ""
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: name + " (before)",
		ToFile:   name + " (after)",
		Context:  0,
	})
	if err != nil {
		return ""
	}
	return text
}

func domainDiff(before, after *Domain) string {
	return rowDiff(before.Domain, before, after)
}
