package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnose_WritesBlock(t *testing.T) {
	var buf bytes.Buffer
	SetDiagnosticsOutput(&buf)
	defer SetDiagnosticsOutput(nil)

	Diagnosef("JSON_PARSE_FAILED body=%s", "<oops>")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "========================================\n"))
	assert.Contains(t, out, "UTC\n")
	assert.Contains(t, out, "JSON_PARSE_FAILED body=<oops>")
}

func TestDiagnose_NoSinkDoesNotPanic(t *testing.T) {
	SetDiagnosticsOutput(nil)
	assert.NotPanics(t, func() { Diagnose("nothing configured") })
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "(empty)", Redact("  "))
	assert.Equal(t, "***", Redact("abc"))
	assert.Equal(t, "abcd***", Redact("abcdefghijkl"))
}
