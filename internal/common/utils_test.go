package common

import (
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRedact(t *testing.T) {
	const key = "a+b/c=d&e"

	cases := map[string]string{
		"raw":     "key " + key + " rejected",
		"escaped": "GET /weather?appid=" + url.QueryEscape(key) + "&q=Tokyo",
	}
	for name, in := range cases {
		got := Redact(in, key)
		if strings.Contains(got, key) || strings.Contains(got, url.QueryEscape(key)) {
			t.Errorf("%s: secret leaked: %q", name, got)
		}
		if !strings.Contains(got, "***") {
			t.Errorf("%s: expected redaction marker in %q", name, got)
		}
	}

	if got := Redact("nothing to hide", ""); got != "nothing to hide" {
		t.Fatalf("empty secret changed input: %q", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := "晴れ時々曇り" // 3 bytes per rune

	for n := 1; n < len(s); n++ {
		got := Truncate(s, n)
		if !utf8.ValidString(got) {
			t.Fatalf("n=%d: truncated to invalid UTF-8: %q", n, got)
		}
		if body := strings.TrimSuffix(got, "...(truncated)"); len(body) > n {
			t.Fatalf("n=%d: kept %d bytes", n, len(body))
		}
	}

	if got := Truncate(s, 4); got != "晴...(truncated)" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("short input changed: %q", got)
	}
}
