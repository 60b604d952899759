package rewrite

import (
	"strings"
	"testing"

	"imgmigrate/internal/apperr"
)

func TestReplaceRoundTrip(t *testing.T) {
	original := "https://ext.example.com/a.png"
	replacement := "https://cdn.mysite.com/a.avif"
	content := `<p>hello</p><img src="https://ext.example.com/a.png">`

	got, err := Replace(content, original, replacement)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if want := `<p>hello</p><img src="https://cdn.mysite.com/a.avif">`; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if len(got) != len(content)+len(replacement)-len(original) {
		t.Fatalf("unexpected length change: %d -> %d", len(content), len(got))
	}

	_, err = Replace(got, original, replacement)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found on second replace, got %v", err)
	}
}

func TestReplaceOnlyFirstOccurrence(t *testing.T) {
	content := "see https://x.test/a.png and https://x.test/a.png"
	got, err := Replace(content, "https://x.test/a.png", "NEW")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got != "see NEW and https://x.test/a.png" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestReplacePrefersImgTag(t *testing.T) {
	content := `link https://x.test/a.png then <img alt="a" src="https://x.test/a.png" width="10">`
	got, err := Replace(content, "https://x.test/a.png", "NEW")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	want := `link https://x.test/a.png then <img alt="a" src="NEW" width="10">`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestReplaceEscapedAttribute(t *testing.T) {
	content := `<r><IMG src="https://x.test/a.png?w=1&amp;h=2"></IMG></r>`
	got, err := Replace(content, "https://x.test/a.png?w=1&h=2", "https://cdn.test/b.webp?v=1&k=2")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	want := `<r><IMG src="https://cdn.test/b.webp?v=1&amp;k=2"></IMG></r>`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestReplaceEscapedAttributeKeepsLiteralCopy(t *testing.T) {
	original := "https://x.test/a.png?w=1&h=2"
	replacement := "https://cdn.test/b.webp?k=2"
	content := `<p>` + original + `</p><IMG src="https://x.test/a.png?w=1&amp;h=2"></IMG>`

	got, err := Replace(content, original, replacement)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	want := `<p>` + original + `</p><IMG src="https://cdn.test/b.webp?k=2"></IMG>`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if delta := len(got) - len(content); delta != len(replacement)-len("https://x.test/a.png?w=1&amp;h=2") {
		t.Fatalf("unexpected length change %d", delta)
	}
	if strings.Count(got, original) != 1 {
		t.Fatalf("expected the literal copy to remain, got %q", got)
	}

	again, err := Replace(got, original, replacement)
	if err != nil {
		t.Fatalf("second replace should hit the literal copy: %v", err)
	}
	if strings.Contains(again, original) {
		t.Fatalf("expected no occurrences left, got %q", again)
	}
}

func TestReplaceSingleQuotedSrc(t *testing.T) {
	got, err := Replace(`<img src='https://x.test/a.png'>`, "https://x.test/a.png", "NEW")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got != `<img src='NEW'>` {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestReplaceNotFound(t *testing.T) {
	_, err := Replace("<p>nothing</p>", "https://x.test/a.png", "NEW")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if !strings.Contains(err.Error(), "https://x.test/a.png") {
		t.Fatalf("expected url in message, got %q", err.Error())
	}
	if _, err := Replace("abc", "", "x"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found for empty original, got %v", err)
	}
}
