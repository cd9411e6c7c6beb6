package backlog

import (
	"testing"

	"github.com/usertesteval/usertest/internal/runmodel"
)

func TestDraftTicketsFromClustersMaterializesOneTicketPerCluster(t *testing.T) {
	atomsByIndex := []runmodel.Atom{
		{AtomID: "r1:command_failure:1", Source: runmodel.SourceCommandFailure, SeverityHint: runmodel.SeverityHigh, Text: "command `pytest` failed with exit code 1"},
		{AtomID: "r2:command_failure:1", Source: runmodel.SourceCommandFailure, SeverityHint: runmodel.SeverityMedium, Text: "command `pytest` failed with exit code 1"},
		{AtomID: "r3:confusion_point:1", Source: runmodel.SourceConfusionPoint, SeverityHint: runmodel.SeverityLow, Text: "agent seemed unsure about test layout"},
	}
	clusters := []runmodel.Cluster{
		{Representative: 0, Members: []int{0, 1}},
		{Representative: 2, Members: []int{2}},
	}

	tickets := DraftTicketsFromClusters(clusters, atomsByIndex)
	if len(tickets) != 2 {
		t.Fatalf("tickets = %d, want 2", len(tickets))
	}

	first := tickets[0]
	if first.Severity != runmodel.SeverityHigh {
		t.Errorf("first.Severity = %q, want high (max of cluster members)", first.Severity)
	}
	if len(first.EvidenceAtomIDs) != 2 {
		t.Errorf("first.EvidenceAtomIDs = %v, want 2 ids", first.EvidenceAtomIDs)
	}
	if len(first.ChangeSurface.Kinds) != 1 || first.ChangeSurface.Kinds[0] != "code_change" {
		t.Errorf("first.ChangeSurface = %+v, want [code_change]", first.ChangeSurface)
	}

	second := tickets[1]
	if len(second.EvidenceAtomIDs) != 1 || second.EvidenceAtomIDs[0] != "r3:confusion_point:1" {
		t.Errorf("second.EvidenceAtomIDs = %v", second.EvidenceAtomIDs)
	}
	if len(second.ChangeSurface.Kinds) != 0 {
		t.Errorf("second.ChangeSurface = %+v, want no kinds (confusion_point implies none)", second.ChangeSurface)
	}
}

func TestDraftTicketsFromClustersSkipsEmptyClusters(t *testing.T) {
	tickets := DraftTicketsFromClusters([]runmodel.Cluster{{Representative: 0, Members: nil}}, nil)
	if len(tickets) != 0 {
		t.Fatalf("tickets = %d, want 0", len(tickets))
	}
}
