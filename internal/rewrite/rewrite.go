// Package rewrite swaps one image reference inside stored post content.
package rewrite

import (
	"html"
	"regexp"
	"strings"

	"imgmigrate/internal/apperr"
)

// Replace substitutes the first occurrence of original in content.
//
// An img element whose src equals original (HTML-escaped first, then
// verbatim) is preferred over a bare substring hit, so a decorative copy of
// the same URL earlier in the text is left alone. Content without any literal
// occurrence fails with a not_found error.
//
// When the escaped form matches, the replacement is written escaped as well,
// so the length changes by the difference of the escaped URLs. A verbatim copy
// of original elsewhere in the text is left in place and a later Replace
// call still finds it.
func Replace(content, original, replacement string) (string, error) {
	if original == "" {
		return "", apperr.New(apperr.KindNotFound, "original url is empty")
	}

	escapedOriginal := html.EscapeString(original)
	if escapedOriginal != original {
		if out, ok := replaceImgSrc(content, escapedOriginal, html.EscapeString(replacement)); ok {
			return out, nil
		}
	}
	if out, ok := replaceImgSrc(content, original, replacement); ok {
		return out, nil
	}

	pos := strings.Index(content, original)
	if pos < 0 {
		return "", apperr.New(apperr.KindNotFound, "original image url %s was not found in content", original)
	}
	return content[:pos] + replacement + content[pos+len(original):], nil
}

func replaceImgSrc(content, search, replacement string) (string, bool) {
	pattern := regexp.MustCompile(`(?i)<img\b[^>]*?\ssrc=(["'])` + regexp.QuoteMeta(search) + `["']`)
	loc := pattern.FindStringSubmatchIndex(content)
	if loc == nil {
		return "", false
	}
	// loc[1] is the end of the whole match; the url sits right before the closing quote.
	end := loc[1] - 1
	start := end - len(search)
	return content[:start] + replacement + content[end:], true
}
