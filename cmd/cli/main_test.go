package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

func TestSplitIDs(t *testing.T) {
	got := splitIDs(" a, b,,c ,", ",")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("splitIDs = %q", got)
	}
	if got := splitIDs("x\n\ny\r\n", "\n"); len(got) != 2 || got[1] != "y" {
		t.Errorf("splitIDs by line = %q", got)
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	progressPrinter(&buf)(domain.NewProgress(domain.PhaseSplitCleanup, 250, 1000))
	progressPrinter(&buf)(domain.NewProgress("", 1, 3))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "split-cleanup") || !strings.Contains(lines[0], " 25%") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "ingest") || !strings.Contains(lines[1], " 33%") {
		t.Errorf("line 1 = %q", lines[1])
	}
}
