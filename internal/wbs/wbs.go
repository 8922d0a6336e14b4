// Package wbs issues hierarchical work breakdown structure codes.
// Codes are assigned once at creation and never mutated or reassigned;
// reparenting issues a fresh code so baselines keep their historical
// references.
package wbs

import (
	"strconv"
	"strings"
)

// NextCode returns the next available code among existing codes.
// Root-level: max existing root integer + 1. Under a parent: parentCode
// "." max immediate child suffix + 1. Gaps left by deleted codes are not
// reused backwards; numbering only moves forward.
func NextCode(existing []string, parentCode string) string {
	if parentCode == "" {
		max := 0
		for _, code := range existing {
			n, err := strconv.Atoi(code)
			if err != nil {
				continue
			}
			if n > max {
				max = n
			}
		}
		return strconv.Itoa(max + 1)
	}

	prefix := parentCode + "."
	max := 0
	for _, code := range existing {
		rest, ok := strings.CutPrefix(code, prefix)
		if !ok {
			continue
		}
		// Immediate children only: the remainder must be a bare integer.
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return prefix + strconv.Itoa(max+1)
}

// Level returns the hierarchy level a code sits at (root = 1).
func Level(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(code, ".") + 1
}

// ParentCode returns the code one level up, or "" for root codes.
func ParentCode(code string) string {
	i := strings.LastIndex(code, ".")
	if i < 0 {
		return ""
	}
	return code[:i]
}

// Valid reports whether code is a dot-separated list of positive integers.
func Valid(code string) bool {
	if code == "" {
		return false
	}
	for _, part := range strings.Split(code, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return false
		}
	}
	return true
}
