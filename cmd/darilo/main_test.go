package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(16)
	if err != nil {
		t.Fatalf("generatePassword: %v", err)
	}
	if len(a) != 16 {
		t.Errorf("expected 16 characters, got %d", len(a))
	}
	b, _ := generatePassword(16)
	if a == b {
		t.Error("expected two generated passwords to differ")
	}
}

func TestInitAndReconcile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "darilo.sqlite3")

	out, err := run(t, "--db", path, "--user", "root", "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "Username: root") {
		t.Errorf("expected admin username in output, got:\n%s", out)
	}

	if _, err := run(t, "--db", path, "init"); err == nil {
		t.Error("expected second init to fail")
	}

	out, err = run(t, "--db", path, "reconcile")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !strings.Contains(out, "0 entities rewritten") {
		t.Errorf("unexpected reconcile output: %s", out)
	}
}

func TestReconcileRequiresDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sqlite3")

	_, err := run(t, "--db", path, "reconcile")
	if err == nil || !strings.Contains(err.Error(), "run init first") {
		t.Errorf("expected missing database error, got %v", err)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	t.Setenv("DARILO_FULFILLMENT_POLICY", "whenever")
	path := filepath.Join(t.TempDir(), "darilo.sqlite3")

	if _, err := run(t, "--db", path, "init"); err == nil {
		t.Error("expected unknown fulfilment policy to be rejected")
	}
}
