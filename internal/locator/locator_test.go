package locator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIgnoresCase(t *testing.T) {
	for name, want := range map[string]Type{
		"xpath":           XPATH,
		"Id":              ID,
		" NAME ":          NAME,
		"className":       CLASSNAME,
		"css":             CSS,
		"partialLinkText": PARTIALLINKTEXT,
		"linktext":        LINKTEXT,
		"TagName":         TAGNAME,
	} {
		got, err := Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := Parse("shadow")
	assert.True(t, errors.Is(err, ErrInvalidType))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		typ    Type
		value  string
		scoped bool
		want   Query
	}{
		{CSS, "div.box > a", false, Query{KindCSS, "div.box > a"}},
		{TAGNAME, "input", false, Query{KindCSS, "input"}},
		{XPATH, "//form/input", false, Query{KindXPath, "//form/input"}},
		{XPATH, "//form/input", true, Query{KindXPath, ".//form/input"}},
		{ID, "submit", false, Query{KindXPath, "//*[@id='submit']"}},
		{ID, "submit", true, Query{KindXPath, ".//*[@id='submit']"}},
		{NAME, "user", false, Query{KindXPath, "//*[@name='user']"}},
		{CLASSNAME, "btn", false, Query{KindXPath, "//*[contains(concat(' ', normalize-space(@class), ' '), ' btn ')]"}},
		{LINKTEXT, "Home", false, Query{KindXPath, "//a[normalize-space(.)='Home']"}},
		{PARTIALLINKTEXT, "Ho", false, Query{KindXPath, "//a[contains(normalize-space(.), 'Ho')]"}},
	}

	for _, tt := range tests {
		got, err := Translate(tt.typ, tt.value, tt.scoped)
		require.NoError(t, err, tt.typ.String())
		assert.Equal(t, tt.want, got, tt.typ.String())
	}
}

func TestTranslateRejectsEmptyValue(t *testing.T) {
	_, err := Translate(ID, "  ", false)
	assert.Error(t, err)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "'plain'", Literal("plain"))
	assert.Equal(t, `"it's"`, Literal("it's"))
	assert.Equal(t, `concat('say "hi', "'", 's"')`, Literal(`say "hi's"`))
}

func TestTextRoundTrip(t *testing.T) {
	var typ Type
	require.NoError(t, typ.UnmarshalText([]byte("linkText")))
	assert.Equal(t, LINKTEXT, typ)

	text, err := typ.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "LINKTEXT", string(text))
}
