package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"infra-insight/internal/models"

	"go.uber.org/zap"
)

// FileWriter writes each report as one indented JSON object, replacing the
// previous file.
type FileWriter struct {
	path string
	log  *zap.Logger
}

func NewFileWriter(path string, log *zap.Logger) *FileWriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileWriter{path: path, log: log}
}

func (w *FileWriter) Save(ctx context.Context, r *models.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	// Write to a temp file first so readers never see a partial report.
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}

	w.log.Info("report saved", zap.String("path", w.path), zap.String("report_id", r.ID))
	return nil
}
