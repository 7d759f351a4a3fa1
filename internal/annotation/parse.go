package annotation

import (
	"strconv"
	"strings"
)

// rawAttr is one attribute item as written, before validation.
// GNU syntax allows several items inside one __attribute__ (( ... )),
// e.g. __attribute__ ((__nothrow__ , __leaf__)).
type rawAttr struct {
	Name string
	Args []string
}

// extractAttributes scans declaration text for __attribute__ (( ... ))
// groups and splits them into raw items. Unknown item names are kept;
// the model decides which ones it understands.
func extractAttributes(text string) []rawAttr {
	var out []rawAttr
	for {
		idx := strings.Index(text, "__attribute__")
		if idx < 0 {
			return out
		}
		text = text[idx+len("__attribute__"):]
		body, rest, ok := balancedParens(text)
		if !ok {
			return out
		}
		text = rest
		// strip the inner paren pair of the (( ... )) group
		body = strings.TrimSpace(body)
		if strings.HasPrefix(body, "(") && strings.HasSuffix(body, ")") {
			body = body[1 : len(body)-1]
		}
		for _, item := range splitTopLevel(body) {
			if attr, ok := parseItem(item); ok {
				out = append(out, attr)
			}
		}
	}
}

// balancedParens consumes one balanced ( ... ) group from the front of s
// (skipping leading whitespace) and returns its inside and the remainder.
func balancedParens(s string) (inside, rest string, ok bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	if i >= len(s) || s[i] != '(' {
		return "", s, false
	}
	depth := 0
	start := i + 1
	for ; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[start:i], s[i+1:], true
			}
		}
	}
	return "", s, false
}

// splitTopLevel splits on commas not nested inside parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseItem(item string) (rawAttr, bool) {
	item = strings.TrimSpace(item)
	if item == "" {
		return rawAttr{}, false
	}
	name := item
	var args []string
	if open := strings.IndexByte(item, '('); open >= 0 {
		name = strings.TrimSpace(item[:open])
		inside, _, ok := balancedParens(item[open:])
		if !ok {
			return rawAttr{}, false
		}
		for _, a := range splitTopLevel(inside) {
			a = strings.TrimSpace(a)
			if a != "" {
				args = append(args, a)
			}
		}
	}
	return rawAttr{Name: canonicalName(name), Args: args}, name != ""
}

// canonicalName strips the optional leading/trailing double underscores:
// __nonnull__ and nonnull are the same attribute.
func canonicalName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "__")
	name = strings.TrimSuffix(name, "__")
	return name
}

// intArg resolves an attribute argument to an integer, consulting the
// unit's object-like macros (e.g. chkc_lt(BUFSIZE)).
func intArg(arg string, defines map[string]int64) (int64, bool) {
	arg = strings.TrimSpace(arg)
	if v, err := strconv.ParseInt(arg, 0, 64); err == nil {
		return v, true
	}
	if defines != nil {
		if v, ok := defines[arg]; ok {
			return v, true
		}
	}
	return 0, false
}
