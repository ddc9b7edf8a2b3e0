package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunSummarizeStdin(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("Cat sat.\nDog ran. Cat slept.")
	if err := runSummarize([]string{"-rate", "0.34"}, in, &out); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "Cat sat. Dog ran." {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestRunSummarizeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("Only one sentence here."), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer
	if err := runSummarize([]string{path}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "Only one sentence here." {
		t.Fatalf("unexpected summary %q", got)
	}
	if err := runSummarize([]string{"a", "b"}, strings.NewReader(""), &out); err == nil {
		t.Fatalf("expected usage error for two files")
	}
}

func TestClockMs(t *testing.T) {
	cases := map[int64]string{
		0:       "00:00.000",
		1500:    "00:01.500",
		61005:   "01:01.005",
		-20:     "00:00.000",
		3600000: "60:00.000",
	}
	for in, want := range cases {
		if got := clockMs(in); got != want {
			t.Fatalf("clockMs(%d) = %q, want %q", in, got, want)
		}
	}
}
