// Package locator translates enum-tagged element locators into queries go-rod can evaluate.
package locator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidType is returned for locator names that are not recognized
var ErrInvalidType = errors.New("invalid locator type")

// Type is a strategy for identifying a page element
type Type int

const (
	XPATH Type = iota
	ID
	NAME
	CLASSNAME
	CSS
	PARTIALLINKTEXT
	LINKTEXT
	TAGNAME
)

var names = [...]string{
	XPATH:           "XPATH",
	ID:              "ID",
	NAME:            "NAME",
	CLASSNAME:       "CLASSNAME",
	CSS:             "CSS",
	PARTIALLINKTEXT: "PARTIALLINKTEXT",
	LINKTEXT:        "LINKTEXT",
	TAGNAME:         "TAGNAME",
}

// String returns the locator name as used in reports
func (t Type) String() string {
	if t < 0 || int(t) >= len(names) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return names[t]
}

// Parse looks up a locator type by name, ignoring case
func Parse(name string) (Type, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range names {
		if n == key {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidType, name)
}

// MarshalText implements encoding.TextMarshaler
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Kind is the selector language of a Query
type Kind int

const (
	KindCSS Kind = iota
	KindXPath
)

// Query is a selector in a language the browser evaluates natively
type Query struct {
	Kind Kind
	Expr string
}

// Translate converts a locator into a CSS or XPath query.
// When scoped is true, XPath expressions are made relative to a parent element.
func Translate(t Type, value string, scoped bool) (Query, error) {
	if strings.TrimSpace(value) == "" {
		return Query{}, fmt.Errorf("empty %s locator", t)
	}

	switch t {
	case CSS:
		return Query{Kind: KindCSS, Expr: value}, nil
	case TAGNAME:
		return Query{Kind: KindCSS, Expr: strings.TrimSpace(value)}, nil
	case XPATH:
		expr := value
		if scoped && strings.HasPrefix(expr, "/") {
			expr = "." + expr
		}
		return Query{Kind: KindXPath, Expr: expr}, nil
	case ID:
		return xpath(scoped, fmt.Sprintf("*[@id=%s]", Literal(value))), nil
	case NAME:
		return xpath(scoped, fmt.Sprintf("*[@name=%s]", Literal(value))), nil
	case CLASSNAME:
		class := " " + strings.TrimSpace(value) + " "
		return xpath(scoped, fmt.Sprintf(
			"*[contains(concat(' ', normalize-space(@class), ' '), %s)]", Literal(class))), nil
	case LINKTEXT:
		return xpath(scoped, fmt.Sprintf("a[normalize-space(.)=%s]", Literal(strings.TrimSpace(value)))), nil
	case PARTIALLINKTEXT:
		return xpath(scoped, fmt.Sprintf("a[contains(normalize-space(.), %s)]", Literal(strings.TrimSpace(value)))), nil
	default:
		return Query{}, fmt.Errorf("%w: %d", ErrInvalidType, int(t))
	}
}

func xpath(scoped bool, step string) Query {
	if scoped {
		return Query{Kind: KindXPath, Expr: ".//" + step}
	}
	return Query{Kind: KindXPath, Expr: "//" + step}
}

// Literal quotes s as an XPath string literal
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if part != "" {
			quoted = append(quoted, "'"+part+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
