package fsutil

import (
	"path/filepath"
	"strconv"
	"strings"
)

// maxNameLen bounds names produced by SanitizeName.
const maxNameLen = 128

// SanitizeName makes a safe file or directory name from an arbitrary
// string. Anything other than ASCII letters, digits, dot, underscore or dash
// becomes an underscore, runs of underscores collapse, and leading or
// trailing dots and underscores are trimmed.
func SanitizeName(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// UniqueSubdirs maps each input path to a distinct subdirectory of base,
// named after the input's last element. Repeated names get a -2, -3, ...
// suffix in input order.
func UniqueSubdirs(base string, inputs []string) []string {
	taken := make(map[string]bool, len(inputs))
	dirs := make([]string, len(inputs))
	for i, in := range inputs {
		stem := SanitizeName(filepath.Base(filepath.Clean(in)))
		name := stem
		for n := 2; taken[name]; n++ {
			name = stem + "-" + strconv.Itoa(n)
		}
		taken[name] = true
		dirs[i] = filepath.Join(base, name)
	}
	return dirs
}
