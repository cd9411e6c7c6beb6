package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// computeImageHash derives the content-addressed image tag: first 12 hex
// chars of sha256(dockerfile_bytes || ordered_hash(context_tree)), matching
// the `<repo>:<first12(...)>` scheme in §4.D.
func computeImageHash(dockerfilePath, contextDir string) (string, error) {
	dockerfileBytes, err := os.ReadFile(dockerfilePath)
	if err != nil {
		return "", err
	}
	treeHash, err := orderedHashContextTree(contextDir)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write(dockerfileBytes)
	h.Write(treeHash)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:12], nil
}

// orderedHashContextTree hashes every regular file under contextDir in
// sorted relative-path order, folding path + content into a single digest
// so the tag changes whenever any input file changes.
func orderedHashContextTree(contextDir string) ([]byte, error) {
	var relPaths []string
	err := filepath.WalkDir(contextDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(contextDir, path)
		if relErr != nil {
			return relErr
		}
		relPaths = append(relPaths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(relPaths)

	h := sha256.New()
	for _, rel := range relPaths {
		h.Write([]byte(rel))
		h.Write([]byte{0})
		f, err := os.Open(filepath.Join(contextDir, rel))
		if err != nil {
			return nil, err
		}
		_, copyErr := io.Copy(h, f)
		f.Close()
		if copyErr != nil {
			return nil, copyErr
		}
	}
	return h.Sum(nil), nil
}
