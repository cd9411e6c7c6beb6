package ledger

import (
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/usertesteval/usertest/internal/runmodel"
)

// Store is the on-disk atom-action/ticket-action ledger pair for one
// compiled-artifacts directory. Both ledgers are rewritten atomically
// (write to a sibling temp file, then rename) since concurrent Backlog
// Pipeline runs against the same compiled dir are not supported but a
// crash mid-write must never leave a truncated ledger behind.
type Store struct {
	AtomActionsPath   string
	TicketActionsPath string
}

// NewStore returns a Store rooted at compiledDir/ledger/{atom_actions,ticket_actions}.yaml.
func NewStore(compiledDir string) Store {
	return Store{
		AtomActionsPath:   filepath.Join(compiledDir, "ledger", "atom_actions.yaml"),
		TicketActionsPath: filepath.Join(compiledDir, "ledger", "ticket_actions.yaml"),
	}
}

// LoadAtomActions reads the atom-action ledger, returning an empty map if
// the file doesn't exist yet.
func (s Store) LoadAtomActions() (map[string]*runmodel.AtomAction, error) {
	out := map[string]*runmodel.AtomAction{}
	b, err := os.ReadFile(s.AtomActionsPath)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveAtomActions atomically rewrites the atom-action ledger.
func (s Store) SaveAtomActions(atoms map[string]*runmodel.AtomAction) error {
	b, err := yaml.Marshal(atoms)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.AtomActionsPath, b)
}

// LoadTicketActions reads the ticket-action ledger, returning an empty map
// if the file doesn't exist yet.
func (s Store) LoadTicketActions() (map[string]*runmodel.TicketAction, error) {
	out := map[string]*runmodel.TicketAction{}
	b, err := os.ReadFile(s.TicketActionsPath)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveTicketActions atomically rewrites the ticket-action ledger.
func (s Store) SaveTicketActions(tickets map[string]*runmodel.TicketAction) error {
	b, err := yaml.Marshal(tickets)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.TicketActionsPath, b)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// SortedFingerprints returns index's keys sorted, for deterministic
// iteration over scan results.
func SortedFingerprints(index map[string]PlanIndexEntry) []string {
	out := make([]string, 0, len(index))
	for k := range index {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
