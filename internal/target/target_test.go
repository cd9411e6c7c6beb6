package target

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func runOK(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestAcquireCopiesLocalNonGitDir(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(src, "node_modules", "x"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "node_modules", "x", "junk.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "ws")
	got, err := Acquire(src, dest, "")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got.Mode != ModeCopy {
		t.Fatalf("mode = %q, want copy", got.Mode)
	}
	if _, err := os.Stat(filepath.Join(got.WorkspaceDir, "main.go")); err != nil {
		t.Fatalf("main.go missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(got.WorkspaceDir, "node_modules")); !os.IsNotExist(err) {
		t.Fatalf("node_modules should have been ignored")
	}
	if got.CommitSHA == "" {
		t.Fatalf("expected a bootstrapped commit sha")
	}
}

func TestAcquireClonesLocalGitRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	src := t.TempDir()
	runOK(t, src, "-C", src, "init")
	runOK(t, src, "-C", src, "config", "user.email", "a@b.c")
	runOK(t, src, "-C", src, "config", "user.name", "a")
	if err := os.WriteFile(filepath.Join(src, "f.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	runOK(t, src, "-C", src, "add", "-A")
	runOK(t, src, "-C", src, "commit", "-m", "init")

	dest := filepath.Join(t.TempDir(), "ws")
	got, err := Acquire(src, dest, "")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got.Mode != ModeGit {
		t.Fatalf("mode = %q, want git", got.Mode)
	}
	if got.CommitSHA == "" {
		t.Fatalf("expected a commit sha")
	}
}

func TestAcquirePipSpecWritesRequirements(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dest := filepath.Join(t.TempDir(), "ws")
	got, err := Acquire("pip:requests==2.31.0", dest, "")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got.Mode != ModePip {
		t.Fatalf("mode = %q, want pip", got.Mode)
	}
	content, err := os.ReadFile(filepath.Join(got.WorkspaceDir, "requirements.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "requests==2.31.0\n" {
		t.Fatalf("requirements.txt = %q", content)
	}
}
