package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/usertesteval/usertest/internal/history"
	"github.com/usertesteval/usertest/internal/issueanalysis"
)

func cmdReportsAnalyze(args []string) {
	var runsDir, target, windowStr string
	if err := parseFlags(args, map[string]*string{
		"--runs-dir": &runsDir,
		"--target":   &target,
		"--window":   &windowStr,
	}, nil); err != nil {
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

	window := len(records)
	if windowStr != "" {
		n, err := strconv.Atoi(windowStr)
		if err != nil || n <= 0 {
			fmt.Fprintln(os.Stderr, "--window must be a positive integer")
			os.Exit(1)
		}
		window = n
	}
	if window < len(records) {
		records = records[len(records)-window:]
	}

	summary := issueanalysis.ComputeWindowSummary(records)

	jsonPath := filepath.Join(compiledDir(runsDir, target), target+".issue_analysis.json")
	if err := writeJSONFile(jsonPath, summary); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	mdPath := filepath.Join(compiledDir(runsDir, target), target+".issue_analysis.md")
	if err := os.MkdirAll(filepath.Dir(mdPath), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := os.WriteFile(mdPath, []byte(issueanalysis.RenderIssueAnalysisMarkdown(summary)), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("runs=%d\n", summary.Runs)
	fmt.Printf("out_json=%s\n", jsonPath)
	fmt.Printf("out_md=%s\n", mdPath)
}
