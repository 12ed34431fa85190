// Package textutil has the small string helpers used by listings: natural
// sorting and human readable sizes.
package textutil

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// SortBy sorts list by the string key returns, ignoring case. With natural
// set, digit runs compare by numeric value ("web2" < "web10").
func SortBy[T any](list []T, key func(T) string, natural bool) {
	cmp := CompareFold
	if natural {
		cmp = CompareNatural
	}
	slices.SortStableFunc(list, func(a, b T) int {
		return cmp(key(a), key(b))
	})
}

// CompareFold compares two strings case-insensitively.
func CompareFold(a, b string) int {
	return strings.Compare(fold.String(a), fold.String(b))
}

// CompareNatural compares two strings case-insensitively, treating runs of
// digits as numbers.
func CompareNatural(a, b string) int {
	a, b = fold.String(a), fold.String(b)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si := i
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			sj := j
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na := strings.TrimLeft(a[si:i], "0")
			nb := strings.TrimLeft(b[sj:j], "0")
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(a)-i < len(b)-j:
		return -1
	case len(a)-i > len(b)-j:
		return 1
	}
	return 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

type unitSystem struct {
	prefix []string
	size   float64
}

var unitSystems = map[string]unitSystem{
	"si": {prefix: []string{"B", "KB", "MB", "GB", "TB", "PB"}, size: 1000},
	"bi": {prefix: []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}, size: 1024},
}

// SizeReadable formats a byte count. system is "si" (1000) or "bi" (1024),
// unknown systems fall back to si. max caps the unit ("MB" never goes to
// GB); format receives the value and the unit, "" means "%01.2f %s".
func SizeReadable(size float64, max, system, format string) string {
	sys, ok := unitSystems[system]
	if !ok {
		sys = unitSystems["si"]
	}
	if format == "" {
		format = "%01.2f %s"
	}

	depth := len(sys.prefix) - 1
	if max != "" {
		if d := slices.Index(sys.prefix, max); d >= 0 {
			depth = d
		}
	}

	i := 0
	for size >= sys.size && i < depth {
		size /= sys.size
		i++
	}
	return fmt.Sprintf(format, size, sys.prefix[i])
}
