package backlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/usertesteval/usertest/internal/runmodel"
	"github.com/usertesteval/usertest/internal/triage"
)

const fingerprintTokenCap = 24

type fingerprintInput struct {
	TitleTokens []string `json:"title_tokens"`
	Anchors     []string `json:"anchors"`
	Kinds       []string `json:"kinds"`
	Owner       string   `json:"owner"`
}

func capped(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// TicketFingerprint computes the short dedupe key for a ticket: SHA-256 of
// the canonical JSON of the first 24 of its sorted title tokens, the first 24
// of its sorted path anchors (extracted from title+problem text), the first
// 24 of its sorted change-surface kinds, and
// owner, truncated to 16 hex characters (§3, spec.md:48).
func TicketFingerprint(ticket runmodel.Ticket) string {
	titleTokens := triage.Tokenize(ticket.Title)
	sort.Strings(titleTokens)

	anchors := triage.ExtractPathAnchorsFromChunks([]string{ticket.Title, ticket.Problem})
	sort.Strings(anchors)

	kinds := append([]string(nil), ticket.ChangeSurface.Kinds...)
	sort.Strings(kinds)

	input := fingerprintInput{
		TitleTokens: capped(titleTokens, fingerprintTokenCap),
		Anchors:     capped(anchors, fingerprintTokenCap),
		Kinds:       capped(kinds, fingerprintTokenCap),
		Owner:       strings.TrimSpace(ticket.SuggestedOwner),
	}

	canonical, err := json.Marshal(input)
	if err != nil {
		// input is a plain struct of strings/slices; Marshal cannot fail.
		panic(err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}
