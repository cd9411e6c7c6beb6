package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/usertesteval/usertest/internal/export"
	"github.com/usertesteval/usertest/internal/ledger"
	"github.com/usertesteval/usertest/internal/orchestrator"
	"github.com/usertesteval/usertest/internal/runmodel"
)

func readBacklogTickets(runsDir, target string) ([]runmodel.Ticket, error) {
	path := filepath.Join(compiledDir(runsDir, target), target+".backlog.json")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report backlogReport
	if err := json.Unmarshal(b, &report); err != nil {
		return nil, err
	}
	return report.Tickets, nil
}

func cmdReportsExportTickets(args []string) {
	var runsDir, target, ownerRepo, repoOverride string
	if err := parseFlags(args, map[string]*string{
		"--runs-dir": &runsDir,
		"--target":   &target,
		"--owner-repo": &ownerRepo,
		"--repo":       &repoOverride,
	}, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if runsDir == "" || target == "" || ownerRepo == "" {
		usage()
		os.Exit(1)
	}

	tickets, err := readBacklogTickets(runsDir, target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	store := ledger.NewStore(compiledDir(runsDir, target))
	atomActions, err := store.LoadAtomActions()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ticketActions, err := store.LoadTicketActions()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	planIndex, err := ledger.ScanPlanTicketIndex(ownerRepo)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	opts := export.Options{
		RepoRoot:     ownerRepo,
		CLIRepoInput: repoOverride,
		NowUTC:       orchestrator.NowUTC(),
	}

	results, stats, err := export.ExportTickets(tickets, opts, planIndex, atomActions, ticketActions)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := store.SaveAtomActions(atomActions); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := store.SaveTicketActions(ticketActions); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sweepStats, err := export.Sweep([]string{ownerRepo})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	outPath := filepath.Join(compiledDir(runsDir, target), target+".tickets_export.json")
	if err := writeJSONFile(outPath, map[string]any{
		"generated_at_utc": opts.NowUTC,
		"results":          results,
		"stats":            stats,
		"sweep":            sweepStats,
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("exports_total=%d\n", stats.ExportsTotal)
	fmt.Printf("skipped_actioned=%d\n", stats.SkippedActioned)
	fmt.Printf("skipped_existing_plan=%d\n", stats.SkippedExistingPlan)
	fmt.Printf("out=%s\n", outPath)
}
