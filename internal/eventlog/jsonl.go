package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/usertesteval/usertest/internal/runmodel"
)

// WriteEventsJSONL writes one compact JSON object per line, UTF-8, LF
// endings. It overwrites any existing file at path.
func WriteEventsJSONL(path string, events []runmodel.Event) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range events {
		b, err := e.MarshalCompact()
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}

// AppendEventJSONL appends a single event line to the already-open file f.
// It neither opens nor creates a file; the caller owns f.
func AppendEventJSONL(f *os.File, e runmodel.Event) error {
	b, err := e.MarshalCompact()
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}

// IterEventsJSONL reads path and returns the decoded events. Empty or
// blank lines are ignored, matching the write side's line-oriented
// contract. Missing files are reported as an error to the caller; callers
// that treat a missing events file as "no events" should check
// os.IsNotExist themselves.
func IterEventsJSONL(path string) ([]runmodel.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []runmodel.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e runmodel.Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
