package boxxylog

import (
	"bytes"
	"strings"
	"testing"
)

func Test_New_Logs_Info_Lines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := New(&buf, false)
	l.Infof("loaded %d rules", 3)

	if got := buf.String(); !strings.Contains(got, "loaded 3 rules") {
		t.Errorf("output = %q, want it to contain %q", got, "loaded 3 rules")
	}
}

func Test_New_Suppresses_Debug_Lines_When_Not_Verbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := New(&buf, false)
	l.Debugf("canonicalizing %s", "/home/user/.aws")

	if got := buf.String(); strings.Contains(got, "canonicalizing") {
		t.Errorf("expected debug line to be suppressed, got %q", got)
	}
}

func Test_New_Emits_Debug_Lines_When_Verbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := New(&buf, true)
	l.Debugf("canonicalizing %s", "/home/user/.aws")

	if got := buf.String(); !strings.Contains(got, "canonicalizing") {
		t.Errorf("expected debug line to appear in verbose mode, got %q", got)
	}
}

func Test_Nil_Logger_Does_Not_Panic(t *testing.T) {
	t.Parallel()

	var l *Logger

	l.Infof("hello")
	l.Debugf("hello")
	l.Warnf("hello")
	l.Errorf("hello")
}
