// Package faillog appends rejected records and batch errors to per-entity
// JSON log files. Each file stays a single well-formed JSON array across any
// number of appends so downstream reprocessing can consume it directly.
package faillog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FailedRow is a rejected source row with the reason it was rejected and the
// lineage task that was processing it.
type FailedRow struct {
	Row    map[string]string `json:"row"`
	Error  string            `json:"error"`
	TaskID int64             `json:"ibpt_id,omitempty"`
}

// BatchError records a whole-batch load failure with enough context to
// re-run the offset window by hand.
type BatchError struct {
	Error  string `json:"batch_error"`
	Offset int    `json:"offset"`
	Entity string `json:"entity"`
}

// Append writes records to the JSON array in path, creating the file on
// first use. Calling with no records is a no-op. The existing array is
// reopened by trimming its closing bracket, so appends are O(records), not
// O(file).
func Append[T any](path string, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("faillog: mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("faillog: open %s: %w", path, err)
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("faillog: seek: %w", err)
	}

	if size > 2 {
		// Drop the trailing "\n]" and continue the array.
		if err := f.Truncate(size - 2); err != nil {
			return fmt.Errorf("faillog: truncate: %w", err)
		}
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("faillog: seek: %w", err)
		}
		if _, err := f.WriteString(",\n"); err != nil {
			return err
		}
	} else {
		if _, err := f.WriteString("[\n"); err != nil {
			return err
		}
	}

	for i, rec := range records {
		buf, err := json.MarshalIndent(rec, "", "    ")
		if err != nil {
			return fmt.Errorf("faillog: marshal: %w", err)
		}
		if _, err := f.Write(buf); err != nil {
			return err
		}
		sep := "\n"
		if i < len(records)-1 {
			sep = ",\n"
		}
		if _, err := f.WriteString(sep); err != nil {
			return err
		}
	}
	if _, err := f.WriteString("]"); err != nil {
		return err
	}
	return nil
}
