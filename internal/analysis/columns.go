package analysis

import (
	"regexp"
	"strings"
)

var funcWrapRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\((.*)\)$`)

// BaseColumns reduces a selected-column entry to the underlying column
// names: aggregate and function wrappers are stripped, a DISTINCT prefix is
// dropped, and multi-argument calls yield one name per argument. A "*"
// argument survives as "*".
func BaseColumns(entry string) []string {
	for {
		m := funcWrapRe.FindStringSubmatch(entry)
		if m == nil {
			break
		}
		entry = m[1]
	}
	entry = strings.TrimPrefix(entry, "DISTINCT ")
	var names []string
	for _, part := range strings.Split(entry, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}
