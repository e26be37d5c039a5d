package ctypes

import (
	"fmt"
	"strings"
)

// IsPrimitiveWord reports whether w is a keyword that spells part of a
// builtin arithmetic type.
func IsPrimitiveWord(w string) bool {
	switch w {
	case "void", "char", "short", "int", "long", "float", "double",
		"signed", "unsigned", "_Bool", "_Complex", "__int128":
		return true
	}
	return false
}

// CanonicalPrimitive folds specifier words in any order ("int unsigned
// long") into the canonical spelling used by Primitive ("unsigned long").
func CanonicalPrimitive(words []string) (string, error) {
	var (
		counts = map[string]int{}
		sign   string
	)
	for _, w := range words {
		switch w {
		case "signed", "unsigned":
			if sign != "" && sign != w {
				return "", fmt.Errorf("both signed and unsigned in %q", strings.Join(words, " "))
			}
			sign = w
		case "__int128":
			counts["long"] += 2
		default:
			counts[w]++
		}
	}
	bad := func() (string, error) {
		return "", fmt.Errorf("invalid type specifier combination %q", strings.Join(words, " "))
	}
	if counts["_Complex"] > 0 {
		return "", fmt.Errorf("complex types are not supported: %q", strings.Join(words, " "))
	}
	longs := counts["long"]
	switch {
	case counts["void"] > 0:
		if len(words) != 1 {
			return bad()
		}
		return "void", nil
	case counts["_Bool"] > 0:
		if len(words) != 1 {
			return bad()
		}
		return "_Bool", nil
	case counts["float"] > 0:
		if len(words) != 1 {
			return bad()
		}
		return "float", nil
	case counts["double"] > 0:
		if sign != "" || longs > 1 || counts["double"] > 1 || counts["int"]+counts["char"]+counts["short"] > 0 {
			return bad()
		}
		if longs == 1 {
			return "long double", nil
		}
		return "double", nil
	case counts["char"] > 0:
		if counts["char"] > 1 || longs+counts["short"]+counts["int"] > 0 {
			return bad()
		}
		if sign != "" {
			return sign + " char", nil
		}
		return "char", nil
	}
	if counts["int"] > 1 || (counts["short"] > 0 && longs > 0) || counts["short"] > 1 || longs > 2 {
		return bad()
	}
	base := "int"
	switch {
	case counts["short"] > 0:
		base = "short"
	case longs == 1:
		base = "long"
	case longs == 2:
		base = "long long"
	}
	if sign == "unsigned" {
		if base == "int" {
			return "unsigned int", nil
		}
		return "unsigned " + base, nil
	}
	return base, nil
}
