package export

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/usertesteval/usertest/internal/attractor/gitutil"
	"github.com/usertesteval/usertest/internal/runmodel"
)

// OwnerAliases maps a ticket's suggested_owner label to an absolute repo
// root. Callers supply this from their own config; this repo ships no
// built-in alias table.
type OwnerAliases map[string]string

// ResolveOwnerRepoRoot picks the repo root an exported ticket's idea file
// belongs in, trying in order:
//  1. an explicit CLI override,
//  2. the ticket's own repo_inputs_citing, normalized against repoRoot's
//     configured git remotes,
//  3. a known suggested_owner alias,
//  4. the run's scope repo_input,
//  5. repoRoot itself.
func ResolveOwnerRepoRoot(ticket runmodel.Ticket, scopeRepoInput, cliRepoInput, repoRoot string, aliases OwnerAliases) (ownerRoot, ownerInput, resolution string) {
	if cliRepoInput != "" {
		return cliRepoInput, cliRepoInput, "cli_repo_input"
	}

	for _, citing := range ticket.RepoInputsCiting {
		if normalized, ok := normalizeRepoInput(citing, repoRoot); ok {
			return normalized, citing, "ticket_repo_inputs_citing_normalized"
		}
	}

	if ticket.SuggestedOwner != "" && aliases != nil {
		if mapped, ok := aliases[ticket.SuggestedOwner]; ok {
			return mapped, ticket.SuggestedOwner, "suggested_owner:" + ticket.SuggestedOwner
		}
	}

	if scopeRepoInput != "" {
		if normalized, ok := normalizeRepoInput(scopeRepoInput, repoRoot); ok {
			return normalized, scopeRepoInput, "scope_repo_input"
		}
		return scopeRepoInput, scopeRepoInput, "scope_repo_input"
	}

	return repoRoot, repoRoot, "repo_root_fallback"
}

func isRemoteRepoURL(s string) bool {
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "git@") ||
		strings.HasPrefix(s, "ssh://")
}

// normalizeRepoInput resolves one repo_input against repoRoot: a local
// path is returned as-is (absolute-ized); a remote URL is matched against
// repoRoot's own configured git remotes and resolves to repoRoot itself on
// a match.
func normalizeRepoInput(repoInput, repoRoot string) (string, bool) {
	if repoInput == "" {
		return "", false
	}
	if !isRemoteRepoURL(repoInput) {
		if abs, err := filepath.Abs(repoInput); err == nil {
			return abs, true
		}
		return repoInput, true
	}

	remotes, err := gitutil.RemoteURLs(repoRoot)
	if err != nil {
		return "", false
	}
	for _, remote := range remotes {
		if normalizeGitURL(remote) == normalizeGitURL(repoInput) {
			return repoRoot, true
		}
	}
	return "", false
}

// normalizeGitURL reduces an ssh or https git remote to `host/path` for
// scheme/suffix-insensitive comparison.
func normalizeGitURL(raw string) string {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimPrefix(s, "git@")
	s = strings.Replace(s, ":", "/", 1)
	if !strings.Contains(s, "://") {
		s = "ssh://" + s
	}
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		return strings.ToLower(u.Host + u.Path)
	}
	return strings.ToLower(s)
}
