// Package intake drains a directory of raw e-receipt files through the ledger.
// Each file ends up in either the processed or the rejected directory.
package intake

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/metrics"
)

// Admitter is the part of the ledger engine the processor needs.
type Admitter interface {
	NormalizeAndAdmit(ctx context.Context, raw []byte) (*ledger.Verdict, error)
}

// Dirs are the directories the processor works with.
type Dirs struct {
	Intake    string
	Processed string
	Rejected  string
}

// Result is the outcome for one file.
type Result struct {
	File      string
	Status    ledger.VerdictStatus
	ReceiptID string
	Reason    string
	MovedTo   string
}

// Summary counts the outcomes of one Run.
type Summary struct {
	Admitted   int
	Duplicates int
	Conflicts  int
	Malformed  int
	Ignored    int
	Results    []Result
}

// Rejected is the number of files moved to the rejected directory.
func (s *Summary) Rejected() int {
	return s.Duplicates + s.Conflicts + s.Malformed
}

func (s *Summary) add(r Result) {
	switch r.Status {
	case ledger.StatusAdmitted:
		s.Admitted++
	case ledger.StatusDuplicate:
		s.Duplicates++
	case ledger.StatusConflict:
		s.Conflicts++
	case ledger.StatusMalformed:
		s.Malformed++
	case ledger.StatusIgnored:
		s.Ignored++
	}
	s.Results = append(s.Results, r)
}

// Processor moves receipt files from the intake directory into the ledger.
type Processor struct {
	admitter Admitter
	dirs     Dirs
}

// NewProcessor creates a Processor.
func NewProcessor(admitter Admitter, dirs Dirs) *Processor {
	return &Processor{admitter: admitter, dirs: dirs}
}

// EnsureDirectories creates the intake, processed and rejected directories.
func (p *Processor) EnsureDirectories() error {
	for _, dir := range []string{p.dirs.Intake, p.dirs.Processed, p.dirs.Rejected} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Run admits every *.json file in the intake directory in name order.
// A storage error stops the run; the file being processed stays in place.
func (p *Processor) Run(ctx context.Context) (*Summary, error) {
	if err := p.EnsureDirectories(); err != nil {
		return nil, err
	}

	files, err := p.discover()
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := p.processFile(ctx, path)
		if err != nil {
			return summary, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		summary.add(*result)
	}

	slog.Info("Intake run complete",
		"files", len(files),
		"admitted", summary.Admitted,
		"duplicates", summary.Duplicates,
		"ignored", summary.Ignored,
		"rejected", summary.Rejected(),
	)
	return summary, nil
}

func (p *Processor) discover() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.dirs.Intake, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan intake directory: %w", err)
	}

	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

func (p *Processor) processFile(ctx context.Context, path string) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt file: %w", err)
	}

	verdict, err := p.admitter.NormalizeAndAdmit(ctx, raw)
	if err != nil {
		return nil, err
	}

	dest, destination := p.dirs.Processed, "processed"
	if verdict.Status.Rejected() {
		dest, destination = p.dirs.Rejected, "rejected"
	}

	target, err := moveFile(path, dest)
	if err != nil {
		return nil, err
	}
	metrics.IntakeFilesMoved.WithLabelValues(destination).Inc()

	logAttrs := []any{"file", filepath.Base(path), "status", verdict.Status, "moved_to", destination}
	if verdict.Status.Rejected() {
		slog.Warn("Receipt file rejected", append(logAttrs, "reason", verdict.Reason)...)
	} else {
		slog.Debug("Receipt file processed", logAttrs...)
	}

	return &Result{
		File:      filepath.Base(path),
		Status:    verdict.Status,
		ReceiptID: verdict.ReceiptID,
		Reason:    verdict.Reason,
		MovedTo:   target,
	}, nil
}

// moveFile moves path into dir, keeping the base name. An existing file with
// the same name is overwritten.
func moveFile(path, dir string) (string, error) {
	target := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, target); err == nil {
		return target, nil
	}

	// Rename fails across devices; fall back to copy and delete.
	if err := copyFile(path, target); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", path, dir, err)
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return target, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
