package context

import (
	"fmt"
	"strings"
	"testing"
)

func TestCompactShortContentUnchanged(t *testing.T) {
	c := NewResultCompactor(100)
	content := "short output"
	if got := c.Compact(content, false); got != content {
		t.Errorf("expected unchanged content, got %q", got)
	}
}

func TestCompactErrorContentNeverTruncated(t *testing.T) {
	c := NewResultCompactor(50)
	content := strings.Repeat("x", 200)
	if got := c.Compact(content, true); got != content {
		t.Error("error result was truncated")
	}
}

func TestCompactPreservesErrorIndicators(t *testing.T) {
	c := NewResultCompactor(50)
	content := "line one\nerror: something broke\n" + strings.Repeat("padding line\n", 50)
	if got := c.Compact(content, false); got != content {
		t.Error("content with error indicators was truncated")
	}
}

func TestCompactKeepsHeadAndTail(t *testing.T) {
	c := NewResultCompactor(2000)
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString(fmt.Sprintf("result line %03d with some trailing detail\n", i))
	}
	content := sb.String()
	got := c.Compact(content, false)
	if len(got) >= len(content) {
		t.Errorf("compacted content not smaller: %d chars", len(got))
	}
	if len(got) > 2100 {
		t.Errorf("compacted content still too large: %d chars", len(got))
	}
	if !strings.Contains(got, "omitted") {
		t.Error("expected elision marker in compacted content")
	}
	if !strings.Contains(got, "result line 000") || !strings.Contains(got, "result line 099") {
		t.Error("expected head and tail lines to survive compaction")
	}
}

func TestEstimateTokensEmpty(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("expected 0 tokens for empty string, got %d", got)
	}
}

func TestEstimateTokensScalesWithLength(t *testing.T) {
	small := EstimateTokens("hello world")
	large := EstimateTokens(strings.Repeat("hello world ", 100))
	if large <= small {
		t.Errorf("expected larger text to estimate more tokens: small=%d large=%d", small, large)
	}
}
