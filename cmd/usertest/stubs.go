package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/usertesteval/usertest/internal/catalog"
)

// notImplementedExitCode is the fixed exit code every stub subcommand below
// returns: a distinct code from the generic usage-error `1`, so a caller
// scripting around this CLI can tell "you asked for something unsupported"
// apart from "you mistyped a flag".
const notImplementedExitCode = 2

func notImplemented(name string) {
	fmt.Fprintf(os.Stderr, "%s: not implemented in this harness\n", name)
	os.Exit(notImplementedExitCode)
}

// cmdReviewUX and cmdIntentSnapshot are stubs: the UX-review recommendation
// engine and the intent-snapshot summarizer are external collaborators this
// harness's export/ledger layer is built to consume (export.UXReview) but
// does not itself generate.
func cmdReviewUX(_ []string)       { notImplemented("review-ux") }
func cmdIntentSnapshot(_ []string) { notImplemented("intent-snapshot") }

// cmdRun is a stub: a real `run` would spawn an actual provider CLI
// (codex/claude/gemini) as an OS process, stream its stdout through the
// matching internal/adapter parser, and bind that to a sandbox.Instance's
// lifecycle end to end. The adapters in this repo parse an already-captured
// stream; nothing here owns spawning and supervising the subprocess itself,
// so `run` stays a documented stub rather than a partial, untested
// integration.
func cmdRun(_ []string) { notImplemented("run") }

// cmdInit scaffolds a `.usertest/` catalog skeleton under --catalog-root:
// empty persona/mission directories plus a README the Catalog's own
// discovery globs (`**/*.persona.md`, `**/*.mission.md`) will pick up once
// populated.
func cmdInit(args []string) {
	var catalogRoot string
	if err := parseFlags(args, map[string]*string{"--catalog-root": &catalogRoot}, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if catalogRoot == "" {
		catalogRoot = ".usertest"
	}

	cfg := catalog.Config{
		PersonaDirs: []string{filepath.Join(catalogRoot, "personas")},
		MissionDirs: []string{filepath.Join(catalogRoot, "missions")},
	}
	for _, dir := range append(append([]string{}, cfg.PersonaDirs...), cfg.MissionDirs...) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	readme := filepath.Join(catalogRoot, "README.md")
	if _, err := os.Stat(readme); os.IsNotExist(err) {
		body := "# usertest catalog\n\nAdd `*.persona.md` files under `personas/` and `*.mission.md`\nfiles under `missions/`. See internal/catalog for frontmatter fields.\n"
		if err := os.WriteFile(readme, []byte(body), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	fmt.Printf("catalog_root=%s\n", catalogRoot)
}
