package htmlutils

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/siahsang/notes/internal/utils/stringutils"
)

const MaxDescriptionLength = 160

// StripTags returns the text content of an HTML fragment with whitespace collapsed.
// Script and style contents are dropped.
func StripTags(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	var (
		parts []string
		skip  int
	)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		case html.StartTagToken:
			if name, _ := tokenizer.TagName(); isRawText(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); isRawText(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				parts = append(parts, string(tokenizer.Text()))
			}
		}
	}
}

func isRawText(tag string) bool {
	return tag == "script" || tag == "style"
}

// Describe returns metaDescription when it is set, otherwise the plain text of
// body, cut to MaxDescriptionLength characters.
func Describe(metaDescription *string, body string) string {
	if metaDescription != nil && !stringutils.IsBlank(*metaDescription) {
		return stringutils.Truncate(strings.TrimSpace(*metaDescription), MaxDescriptionLength, "")
	}
	return stringutils.Truncate(StripTags(body), MaxDescriptionLength, "")
}
