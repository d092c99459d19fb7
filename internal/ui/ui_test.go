package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTTY_WithBuffer_ReturnsFalse(t *testing.T) {
	// Given: a bytes.Buffer (not a TTY)
	buf := &bytes.Buffer{}

	// When: checking if it's a TTY
	result := IsTTY(buf)

	// Then: returns false
	assert.False(t, result)
}

func TestIsTTY_WithNil_ReturnsFalse(t *testing.T) {
	// Given: nil writer
	// When: checking if it's a TTY
	result := IsTTY(nil)

	// Then: returns false
	assert.False(t, result)
}

func TestDetectNoColor_SetEnvDisablesColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	assert.True(t, DetectNoColor())
}

func TestShouldColor_BufferNeverColors(t *testing.T) {
	assert.False(t, ShouldColor(&bytes.Buffer{}, false))
	assert.False(t, ShouldColor(&bytes.Buffer{}, true))
}

func TestResolveStyles_BufferGetsPlainStyles(t *testing.T) {
	styles := ResolveStyles(&bytes.Buffer{}, false)

	assert.Equal(t, "test", styles.Header.Render("test"))
}

func TestStyleMarkdown_PlainStylesLeaveTextIntact(t *testing.T) {
	md := "# Title\n\n## Section\n\n| Stage | Mean | Median |\n|-------|------|--------|\n| Load | 1.00 | 1.00 |\n\n---\n\nfooter\n"

	styled := StyleMarkdown(NoColorStyles(), md)

	assert.Equal(t, md, styled)
}

func TestStyleMarkdown_KeepsEveryLine(t *testing.T) {
	md := "# Title\nbody text\n```yaml\nkey: value\n```\n"

	styled := StyleMarkdown(DefaultStyles(), md)

	assert.Contains(t, styled, "Title")
	assert.Contains(t, styled, "body text")
	assert.Contains(t, styled, "key: value")
}
