package source

import (
	"strings"
	"unicode"
)

// goReserved lists Go keywords and predeclared identifiers that cannot be
// used verbatim as constructor parameter names. Colliding names get a
// trailing underscore.
var goReserved = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true,
	"for": true, "func": true, "go": true, "goto": true, "if": true,
	"import": true, "interface": true, "map": true, "package": true,
	"range": true, "return": true, "select": true, "struct": true,
	"switch": true, "type": true, "var": true,
	"any": true, "bool": true, "byte": true, "error": true, "int": true,
	"len": true, "make": true, "new": true, "nil": true, "rune": true,
	"string": true, "true": true, "false": true,
}

// ToPascalCase converts snake_case or lowercase names to PascalCase.
// "manager_id" → "ManagerId", "users" → "Users".
func ToPascalCase(s string) string {
	var sb strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' || r == '-' || r == ' ' {
			upper = true
			continue
		}
		if upper {
			sb.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// NamesEqual reports whether a property name and a column name refer to the
// same member. Columns arrive snake_case and properties PascalCase, so the
// comparison folds case and ignores underscores: team_id matches TeamId.
func NamesEqual(a, b string) bool {
	return nameFold(a) == nameFold(b)
}

func nameFold(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r == '_' {
			continue
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

// ParamName derives the constructor parameter name for a property: the
// property name with a lowercase initial, defensively renamed when it
// collides with a Go keyword or predeclared identifier.
func ParamName(property string) string {
	if property == "" {
		return property
	}
	runes := []rune(property)
	runes[0] = unicode.ToLower(runes[0])
	name := string(runes)
	if goReserved[name] {
		name += "_"
	}
	return name
}

// LowerFirst lowercases the first rune of s.
func LowerFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}
