package target

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const pipRepoPrefix = "pip:"

func isPipRepoInput(repo string) bool {
	return strings.HasPrefix(repo, pipRepoPrefix)
}

// acquirePip materializes a synthetic workspace for a `pip:<spec>` repo
// input: a requirements-style file naming the spec plus a bootstrapped git
// history, so agents that expect repo metadata still have something to
// read (§4.E bullet on `pip:<spec>` inputs).
func acquirePip(repo, destDir, ref string) (Acquired, error) {
	packageSpec := strings.TrimPrefix(repo, pipRepoPrefix)
	if strings.TrimSpace(packageSpec) == "" {
		return Acquired{}, fmt.Errorf("empty pip spec in repo input %q", repo)
	}

	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return Acquired{}, err
	}
	if _, err := os.Stat(destDir); err == nil {
		return Acquired{}, fmt.Errorf("destination already exists: %s", destDir)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Acquired{}, err
	}

	acquired, err := func() (Acquired, error) {
		reqFile := filepath.Join(destDir, "requirements.txt")
		if err := os.WriteFile(reqFile, []byte(packageSpec+"\n"), 0o644); err != nil {
			return Acquired{}, err
		}
		readme := filepath.Join(destDir, "README.md")
		content := fmt.Sprintf("# pip target\n\nSynthetic workspace for pip package: %s\n", packageSpec)
		if err := os.WriteFile(readme, []byte(content), 0o644); err != nil {
			return Acquired{}, err
		}
		return bootstrapGitIdentity(destDir, repo, ref, "pip target", ModePip)
	}()
	if err != nil {
		os.RemoveAll(destDir)
		return Acquired{}, err
	}
	return acquired, nil
}
