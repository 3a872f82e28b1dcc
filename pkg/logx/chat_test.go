package logx

import (
	"strings"
	"testing"
)

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"monitor.remove_failed","dest":"-100","err":"forbidden"}` + "\n")
	got := formatChatLine(line)
	want := "[WARN] monitor.remove_failed\n- dest=-100\n- err=forbidden"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}
}

func TestFormatChatLineNotJSON(t *testing.T) {
	t.Parallel()
	got := formatChatLine([]byte("  plain text \n"))
	if got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 50)
	if got := truncate(s, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 20); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("ignored", String("k", "v"))
	if Nop().IsZero() {
		t.Fatal("Nop logger should not be zero")
	}
}
