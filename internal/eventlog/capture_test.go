package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCaptureTextArtifactFullCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := CaptureTextArtifact(path, DefaultCapturePolicy(), dir)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Truncated {
		t.Fatalf("expected no truncation for small file")
	}
	if res.Excerpt != "hello world" {
		t.Fatalf("excerpt = %q", res.Excerpt)
	}
	if !res.ArtifactRef.Exists || res.ArtifactRef.SizeBytes != 11 {
		t.Fatalf("artifact ref = %+v", res.ArtifactRef)
	}
	if res.ArtifactRef.SHA256 == "" {
		t.Fatalf("expected sha256 to be populated")
	}
}

func TestCaptureTextArtifactTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")

	// 4KB + 12KB, exceeding the default head+tail window.
	content := strings.Repeat("a", 4096) + strings.Repeat("b", 12288)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	policy := DefaultCapturePolicy()
	res := CaptureTextArtifact(path, policy, dir)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if !res.Truncated {
		t.Fatalf("expected truncated=true for 16KB file under default policy")
	}
	if !strings.Contains(res.Excerpt, "truncated_output") {
		t.Fatalf("expected truncation marker in excerpt")
	}
}

func TestCaptureTextArtifactBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin.dat")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02, 0xff, 0xfe}, 0o644); err != nil {
		t.Fatal(err)
	}

	res := CaptureTextArtifact(path, DefaultCapturePolicy(), dir)
	if res.Error == "" {
		t.Fatalf("expected binary detection error")
	}
	if res.Excerpt != "" {
		t.Fatalf("expected no excerpt for binary file")
	}
	if !res.ArtifactRef.Exists {
		t.Fatalf("expected artifact ref to still record existence/size/sha256")
	}
}

func TestCaptureTextArtifactMissing(t *testing.T) {
	dir := t.TempDir()
	res := CaptureTextArtifact(filepath.Join(dir, "missing.txt"), DefaultCapturePolicy(), dir)
	if res.ArtifactRef.Exists {
		t.Fatalf("expected Exists=false for missing file")
	}
	if res.Error != "" {
		t.Fatalf("missing file should not itself be an error: %s", res.Error)
	}
}
