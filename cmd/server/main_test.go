package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chatpe/chatpe-server/internal/auth"
)

func TestHashKeyCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hash-key", "letmein"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := auth.CompareAccessKey(hash, "letmein"); err != nil {
		t.Fatalf("printed hash does not match key: %v", err)
	}
}

func TestHashKeyReadsStdin(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("  from-stdin  \n"))
	cmd.SetArgs([]string{"hash-key"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := auth.CompareAccessKey(strings.TrimSpace(out.String()), "from-stdin"); err != nil {
		t.Fatalf("stdin key was not trimmed before hashing: %v", err)
	}
}

func TestHashKeyRejectsEmpty(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("\n"))
	cmd.SetArgs([]string{"hash-key"})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
