// Package target acquires a run's workspace: cloning or copying a repo
// input into a fresh directory, bootstrapping git identity when needed,
// and relocating the destination on Windows when tracked paths would
// overflow MAX_PATH (§4.E).
package target

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Mode records how the workspace was produced.
type Mode string

const (
	ModeGit  Mode = "git"
	ModeCopy Mode = "copy"
	ModePip  Mode = "pip"
)

// Acquired describes a ready-to-use workspace.
type Acquired struct {
	WorkspaceDir string
	RepoInput    string
	Ref          string
	CommitSHA    string
	Mode         Mode
}

// alwaysIgnore mirrors the copytree ignore set: VCS metadata, virtualenvs,
// and tool caches that never belong in a sandboxed workspace copy.
var alwaysIgnoreDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, ".bzr": true,
	".venv": true, "venv": true, "__pypackages__": true, "__pycache__": true,
	".pytest_cache": true, ".mypy_cache": true, ".ruff_cache": true,
	".tox": true, ".nox": true, "node_modules": true,
	".pdm-python": true, ".pdm-build": true, ".scaffold": true,
	".idea": true, ".vscode": true,
}

var rootOnlyIgnoreDirs = map[string]bool{"runs": true, "dist": true, "build": true}

const (
	windowsMaxPath    = 260
	windowsMaxDirPath = 248
)

// Acquire clones a remote/local repo, or copies a local directory and
// bootstraps a fresh git history, into destDir. ref (if non-empty) is
// checked out after clone. Non-Windows callers get the Windows long-path
// relocation logic skipped automatically (GOOS check).
func Acquire(repo, destDir, ref string) (Acquired, error) {
	if isPipRepoInput(repo) {
		return acquirePip(repo, destDir, ref)
	}

	isLocal := looksLikeExistingPath(repo)
	var src string
	if isLocal {
		abs, err := filepath.Abs(repo)
		if err != nil {
			return Acquired{}, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return Acquired{}, err
		}
		if !info.IsDir() {
			return Acquired{}, fmt.Errorf("--repo must be a directory or git URL, got file: %s", repo)
		}
		src = abs
		destDir = relocateIfWithinSource(src, destDir)

		if runtime.GOOS == "windows" {
			maxFile, maxDir := trackedOrCopyRelpathLengths(src)
			if !windowsPathLengthsOK(destDir, maxFile, maxDir) {
				destDir = relocateForWindowsLongpaths(destDir, &maxFile, &maxDir)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return Acquired{}, err
	}
	if _, err := os.Stat(destDir); err == nil {
		return Acquired{}, fmt.Errorf("destination already exists: %s", destDir)
	}

	acquired, err := doAcquire(repo, src, destDir, ref, isLocal)
	if err != nil {
		os.RemoveAll(destDir)
		return Acquired{}, err
	}
	return acquired, nil
}

func doAcquire(repo, src, destDir, ref string, isLocal bool) (Acquired, error) {
	if isLocal {
		gitDir := filepath.Join(src, ".git")
		hasGit := dirExists(gitDir)
		if hasGit {
			if _, err := runGit(src, "rev-parse", "--verify", "HEAD"); err != nil {
				hasGit = false
			}
		}

		if hasGit {
			finalDest := destDir
			if err := gitClone(src, destDir); err != nil {
				if runtime.GOOS == "windows" && isWindowsPathTooLongError(err.Error()) {
					alt := relocateForWindowsLongpaths(destDir, nil, nil)
					if mkErr := os.MkdirAll(filepath.Dir(alt), 0o755); mkErr != nil {
						return Acquired{}, mkErr
					}
					if err2 := gitClone(src, alt); err2 != nil {
						return Acquired{}, err2
					}
					finalDest = alt
				} else {
					return Acquired{}, err
				}
			}
			if ref != "" {
				if _, err := runGit(finalDest, "checkout", ref); err != nil {
					return Acquired{}, err
				}
			}
			sha, err := runGit(finalDest, "rev-parse", "HEAD")
			if err != nil {
				return Acquired{}, err
			}
			return Acquired{WorkspaceDir: finalDest, RepoInput: repo, Ref: ref, CommitSHA: sha, Mode: ModeGit}, nil
		}

		if err := copyTree(src, destDir); err != nil {
			return Acquired{}, err
		}
		return bootstrapGitIdentity(destDir, repo, ref, "initial import", ModeCopy)
	}

	finalDest := destDir
	if err := gitClone(repo, destDir); err != nil {
		if runtime.GOOS == "windows" && isWindowsPathTooLongError(err.Error()) {
			alt := relocateForWindowsLongpaths(destDir, nil, nil)
			if mkErr := os.MkdirAll(filepath.Dir(alt), 0o755); mkErr != nil {
				return Acquired{}, mkErr
			}
			if err2 := gitClone(repo, alt); err2 != nil {
				return Acquired{}, err2
			}
			finalDest = alt
		} else {
			return Acquired{}, err
		}
	}
	if ref != "" {
		if _, err := runGit(finalDest, "checkout", ref); err != nil {
			return Acquired{}, err
		}
	}
	sha, err := runGit(finalDest, "rev-parse", "HEAD")
	if err != nil {
		return Acquired{}, err
	}
	return Acquired{WorkspaceDir: finalDest, RepoInput: repo, Ref: ref, CommitSHA: sha, Mode: ModeGit}, nil
}

func bootstrapGitIdentity(destDir, repo, ref, message string, mode Mode) (Acquired, error) {
	steps := [][]string{
		{"init"},
		{"config", "user.email", "usertest@local"},
		{"config", "user.name", "usertest"},
		{"add", "-A"},
		{"commit", "--allow-empty", "--no-gpg-sign", "--no-verify", "-m", message},
	}
	for _, args := range steps {
		if _, err := runGit(destDir, args...); err != nil {
			return Acquired{}, err
		}
	}
	sha, err := runGit(destDir, "rev-parse", "HEAD")
	if err != nil {
		return Acquired{}, err
	}
	return Acquired{WorkspaceDir: destDir, RepoInput: repo, Ref: ref, CommitSHA: sha, Mode: mode}, nil
}

func runGit(cwd string, args ...string) (string, error) {
	full := append([]string{"-C", cwd}, args...)
	cmd := exec.Command("git", full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = fmt.Sprintf("git failed: %s", strings.Join(args, " "))
		}
		return "", errors.New(msg)
	}
	return strings.TrimSpace(string(out)), nil
}

func gitClone(repo, destDir string) error {
	cmd := exec.Command("git", "clone", repo, destDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = fmt.Sprintf("git clone failed: %v", err)
		}
		return errors.New(msg)
	}
	return nil
}

func looksLikeExistingPath(repo string) bool {
	expanded := repo
	if strings.HasPrefix(repo, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(repo, "~"))
		}
	}
	_, err := os.Stat(expanded)
	return err == nil
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func relocateIfWithinSource(src, destDir string) string {
	srcAbs, err1 := filepath.Abs(src)
	destAbs, err2 := filepath.Abs(destDir)
	if err1 != nil || err2 != nil {
		return destDir
	}
	rel, err := filepath.Rel(srcAbs, destAbs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return destDir
	}
	base := filepath.Join(os.TempDir(), "usertest_workspaces")
	return filepath.Join(base, filepath.Base(destDir))
}

func isWindowsPathTooLongError(msg string) bool {
	lowered := strings.ToLower(msg)
	return strings.Contains(lowered, "filename too long") || strings.Contains(lowered, "file name too long")
}

func windowsPathLengthsOK(destDir string, maxFileRel, maxDirRel int) bool {
	base := len(destDir) + 1
	return (base+maxFileRel) < windowsMaxPath && (base+maxDirRel) < windowsMaxDirPath
}

func trackedOrCopyRelpathLengths(src string) (int, int) {
	if dirExists(filepath.Join(src, ".git")) {
		if out, err := runGit(src, "ls-files"); err == nil {
			return maxLengthsFromLines(out)
		}
	}
	return maxCopytreeRelpathLengths(src)
}

func maxLengthsFromLines(out string) (int, int) {
	maxFile, maxDir := 0, 0
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if len(line) > maxFile {
			maxFile = len(line)
		}
		if idx := strings.LastIndex(line, "/"); idx >= 0 && idx > maxDir {
			maxDir = idx
		}
	}
	return maxFile, maxDir
}

func maxCopytreeRelpathLengths(srcRoot string) (int, int) {
	maxFile, maxDir := 0, 0
	srcAbs, err := filepath.Abs(srcRoot)
	if err != nil {
		srcAbs = srcRoot
	}
	filepath.WalkDir(srcAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(srcAbs, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()
		if d.IsDir() {
			if rel != "." && alwaysIgnoreDirs[name] {
				return filepath.SkipDir
			}
			if filepath.Dir(rel) == "." && rootOnlyIgnoreDirs[name] {
				return filepath.SkipDir
			}
			if rel != "." && len(rel) > maxDir {
				maxDir = len(rel)
			}
			return nil
		}
		if alwaysIgnoreDirs[name] {
			return nil
		}
		if len(rel) > maxFile {
			maxFile = len(rel)
		}
		return nil
	})
	return maxFile, maxDir
}

func workspaceCandidates(destDir string) []string {
	tmp := os.TempDir()
	h := sha1.Sum([]byte(destDir))
	digest := hex.EncodeToString(h[:])[:12]
	base := filepath.Base(destDir)
	return []string{
		filepath.Join(tmp, "usertest_workspaces", base),
		filepath.Join(tmp, "ut", base),
		filepath.Join(tmp, "ut", "ws_"+digest),
	}
}

func relocateForWindowsLongpaths(destDir string, maxFileRel, maxDirRel *int) string {
	if runtime.GOOS != "windows" {
		return destDir
	}
	candidates := workspaceCandidates(destDir)
	if maxFileRel == nil || maxDirRel == nil {
		return candidates[len(candidates)-1]
	}
	for _, c := range candidates {
		if windowsPathLengthsOK(c, *maxFileRel, *maxDirRel) {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

func copyTree(src, dest string) error {
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		srcAbs = src
	}
	return filepath.WalkDir(srcAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(srcAbs, path)
		if relErr != nil {
			return relErr
		}
		name := d.Name()
		if d.IsDir() {
			if rel != "." && alwaysIgnoreDirs[name] {
				return filepath.SkipDir
			}
			if filepath.Dir(rel) == "." && rootOnlyIgnoreDirs[name] {
				return filepath.SkipDir
			}
			target := filepath.Join(dest, rel)
			info, _ := d.Info()
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if alwaysIgnoreDirs[name] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}
