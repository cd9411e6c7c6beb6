package eventlog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/usertesteval/usertest/internal/runmodel"
)

// CapturePolicy configures capture_text_artifact (§4.A). The truncation
// shape mirrors the teacher's tool-output head/tail strategy
// (internal/agent/tool_registry.go's TruncHeadTail), generalized here to
// whole-file artifact capture with a content digest.
type CapturePolicy struct {
	MaxExcerptBytes      int
	HeadBytes            int
	TailBytes            int
	MaxLineCount         int
	BinaryDetectionBytes int
}

// DefaultCapturePolicy matches the teacher's default tool-output limits,
// scaled to whole-artifact capture.
func DefaultCapturePolicy() CapturePolicy {
	return CapturePolicy{
		MaxExcerptBytes:      8000,
		HeadBytes:            4000,
		TailBytes:            4000,
		MaxLineCount:         400,
		BinaryDetectionBytes: 8000,
	}
}

// CaptureResult is the outcome of capturing one artifact.
type CaptureResult struct {
	ArtifactRef runmodel.ArtifactRef
	Excerpt     string
	Truncated   bool
	Error       string
}

const truncationMarker = "\n...[truncated_output]...\n"

// CaptureTextArtifact implements capture_text_artifact: it records the
// artifact's existence, size and SHA-256 regardless of outcome, and
// produces either a full-copy excerpt (file small enough to fit within
// head+tail) or a head+tail excerpt with a truncation marker. Binary
// content or a read error yields an Error and no excerpt, but the
// ArtifactRef is still populated from what could be stat'd.
func CaptureTextArtifact(path string, policy CapturePolicy, root string) CaptureResult {
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil {
			rel = r
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return CaptureResult{ArtifactRef: runmodel.ArtifactRef{Path: rel, Exists: false}}
		}
		return CaptureResult{ArtifactRef: runmodel.ArtifactRef{Path: rel, Exists: false}, Error: err.Error()}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return CaptureResult{
			ArtifactRef: runmodel.ArtifactRef{Path: rel, Exists: true, SizeBytes: info.Size()},
			Error:       err.Error(),
		}
	}

	sum := sha256.Sum256(b)
	ref := runmodel.ArtifactRef{
		Path:      rel,
		Exists:    true,
		SizeBytes: int64(len(b)),
		SHA256:    hex.EncodeToString(sum[:]),
	}

	detectLen := policy.BinaryDetectionBytes
	if detectLen <= 0 || detectLen > len(b) {
		detectLen = len(b)
	}
	if looksBinary(b[:detectLen]) {
		return CaptureResult{ArtifactRef: ref, Error: "binary content detected"}
	}

	headTail := policy.HeadBytes + policy.TailBytes
	if len(b) <= headTail || len(b) <= policy.MaxExcerptBytes {
		return CaptureResult{ArtifactRef: ref, Excerpt: string(b), Truncated: false}
	}

	head := b[:policy.HeadBytes]
	tail := b[len(b)-policy.TailBytes:]
	excerpt := string(head) + truncationMarker + string(tail)
	return CaptureResult{ArtifactRef: ref, Excerpt: excerpt, Truncated: true}
}

// looksBinary applies the same heuristic the teacher's adapters use when
// deciding whether stdout is safe to embed as text: invalid UTF-8 or a NUL
// byte in the sampled prefix.
func looksBinary(sample []byte) bool {
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	return !utf8.Valid(sample)
}

// HeadTailExcerpt shortens an in-memory string (already-captured command
// output, for example) that is longer than maxChars bytes: it keeps maxChars
// bytes of s, the first half from the head and the rest from the tail, joined
// by the same truncation marker (so the result is maxChars bytes plus the
// marker), independent of any file on disk. Used by the
// adapters when writing command_failures/cmd_NN excerpts (§4.B).
func HeadTailExcerpt(s string, maxChars int) (string, bool) {
	if maxChars <= 0 || len(s) <= maxChars {
		return s, false
	}
	half := maxChars / 2
	head := s[:half]
	tail := s[len(s)-(maxChars-half):]
	return fmt.Sprintf("%s%s%s", head, truncationMarker, tail), true
}
