package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/usertesteval/usertest/internal/atoms"
	"github.com/usertesteval/usertest/internal/backlog"
	"github.com/usertesteval/usertest/internal/history"
	"github.com/usertesteval/usertest/internal/orchestrator"
	"github.com/usertesteval/usertest/internal/runmodel"
	"github.com/usertesteval/usertest/internal/triage"
)

func compiledDir(runsDir, target string) string {
	return filepath.Join(runsDir, target, "_compiled")
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func writeJSONLFile(path string, items []runmodel.Atom) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// backlogReport mirrors <target>.backlog.json's top-level shape.
type backlogReport struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Tickets        []runmodel.Ticket `json:"tickets"`
}

func cmdReportsBacklog(args []string) {
	var runsDir, target string
	if err := parseFlags(args, map[string]*string{"--runs-dir": &runsDir, "--target": &target}, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if runsDir == "" || target == "" {
		usage()
		os.Exit(1)
	}

	records, err := history.IterReportHistory(runsDir, history.Options{TargetSlug: target})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var allAtoms []runmodel.Atom
	eligible := map[string]bool{}
	for _, rec := range records {
		extracted := atoms.ExtractAtoms(rec)
		allAtoms = append(allAtoms, extracted...)
		if len(extracted) > 0 {
			eligible[rec.RunRel] = true
		}
	}
	allAtoms = append(allAtoms, atoms.BuildAggregateMetricsAtoms(records, eligible, target, 0)...)

	if err := writeJSONLFile(filepath.Join(compiledDir(runsDir, target), target+".backlog.atoms.jsonl"), allAtoms); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	atomLookup := func(atomID string) (runmodel.Atom, bool) {
		for _, a := range allAtoms {
			if a.AtomID == atomID {
				return a, true
			}
		}
		return runmodel.Atom{}, false
	}

	vectors, err := triage.BuildItemVectors(
		allAtoms,
		func(a runmodel.Atom) string { return a.Text },
		func(a runmodel.Atom) []string { return []string{a.Text} },
		func(a runmodel.Atom) []string { return []string{a.AtomID} },
		triage.BuildItemVectorsOptions{},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	clusters := triage.ClusterItemsKNN(vectors, triage.ClusterOptions{
		OverallThreshold: 0.6,
		CandidatePairs:   triage.DefaultCandidatePairOptions(),
	})

	policy := backlog.DefaultPolicy()
	drafts := backlog.DraftTicketsFromClusters(clusters, allAtoms)
	tickets := make([]runmodel.Ticket, 0, len(drafts))
	for i, draft := range drafts {
		draft.Fingerprint = backlog.TicketFingerprint(draft)
		draft.TicketID = fmt.Sprintf("BLG-%03d", i+1)
		evaluated := backlog.EvaluateTicket(draft, atomLookup, policy, false)
		tickets = append(tickets, evaluated)
	}

	report := backlogReport{GeneratedAtUTC: orchestrator.NowUTC(), Tickets: tickets}
	outPath := filepath.Join(compiledDir(runsDir, target), target+".backlog.json")
	if err := writeJSONFile(outPath, report); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("tickets=%d\n", len(tickets))
	fmt.Printf("atoms=%d\n", len(allAtoms))
	fmt.Printf("out=%s\n", outPath)
}
