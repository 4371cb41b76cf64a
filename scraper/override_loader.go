// scraper/override_loader.go
package scraper

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/gewnthar/parkalerts/apperrors"
	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/models"
)

// FileOverrideLoader reads the operator-curated override table. Lines whose
// first non-blank character is '#' and blank lines are ignored.
type FileOverrideLoader struct {
	Path   string
	logger *slog.Logger
}

func NewFileOverrideLoader(path string) *FileOverrideLoader {
	return &FileOverrideLoader{Path: path, logger: logging.ForService("overrides")}
}

// LoadOverrides parses the file. A missing file yields no overrides and no
// error. Rejected rows are reported as in ParseOverrides.
func (l *FileOverrideLoader) LoadOverrides() ([]models.ParkOverride, error) {
	data, err := os.ReadFile(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		l.log().Info("override file not found, continuing without overrides", "path", l.Path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read override file %s: %w", l.Path, err)
	}

	overrides, err := ParseOverrides(data)
	var invalid *InvalidOverridesError
	switch {
	case errors.As(err, &invalid):
		l.log().Warn("skipped invalid override rows", "path", l.Path, "count", len(overrides), "invalid", len(invalid.Rows))
		return overrides, err
	case err != nil:
		return nil, fmt.Errorf("override file %s: %w", l.Path, err)
	}
	l.log().Info("loaded overrides", "path", l.Path, "count", len(overrides))
	return overrides, nil
}

func (l *FileOverrideLoader) log() *slog.Logger {
	if l.logger == nil {
		l.logger = logging.ForService("overrides")
	}
	return l.logger
}

// OverrideRowError is one override row that could not be used.
type OverrideRowError struct {
	Row    int // 1-based data row, header excluded
	ParkID string
	Err    error
}

func (e OverrideRowError) Error() string {
	return fmt.Sprintf("row %d (park %s): %v", e.Row, e.ParkID, e.Err)
}

// InvalidOverridesError is returned together with the usable rows when some
// rows were rejected.
type InvalidOverridesError struct {
	Rows []OverrideRowError
}

func (e *InvalidOverridesError) Error() string {
	msgs := make([]string, len(e.Rows))
	for i, r := range e.Rows {
		msgs[i] = r.Error()
	}
	return fmt.Sprintf("%d invalid override rows: %s", len(e.Rows), strings.Join(msgs, "; "))
}

// ParkIDs lists the parks whose override rows were rejected.
func (e *InvalidOverridesError) ParkIDs() []string {
	ids := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		if r.ParkID != "" {
			ids = append(ids, r.ParkID)
		}
	}
	return ids
}

// ParseOverrides decodes override CSV content. An empty or "null" object_id
// marks the park as explicitly unmatched. Rows without a park_id are skipped.
// Rows with an unusable object_id are left out and reported through an
// *InvalidOverridesError returned alongside the valid rows.
func ParseOverrides(data []byte) ([]models.ParkOverride, error) {
	cleaned := stripComments(data)
	if len(bytes.TrimSpace(cleaned)) == 0 {
		return nil, nil
	}

	dec, err := csvutil.NewDecoder(csv.NewReader(bytes.NewReader(cleaned)))
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder for overrides: %w", err)
	}
	dec.Map = func(field, _ string, _ any) string {
		return strings.TrimSpace(field)
	}

	var rows []models.ParkOverride
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode overrides: %w", err)
	}

	overrides := make([]models.ParkOverride, 0, len(rows))
	var invalid []OverrideRowError
	for i, row := range rows {
		if row.ParkID == "" {
			continue
		}
		raw := row.RawObjectID
		if raw != "" && !strings.EqualFold(raw, "null") {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				invalid = append(invalid, OverrideRowError{
					Row:    i + 1,
					ParkID: row.ParkID,
					Err: apperrors.Newf("invalid object_id %q", raw).
						Kind(apperrors.KindRecordInvalid).
						Component("overrides").
						Build(),
				})
				continue
			}
			row.ObjectID = &id
		}
		overrides = append(overrides, row)
	}
	if len(invalid) > 0 {
		return overrides, &InvalidOverridesError{Rows: invalid}
	}
	return overrides, nil
}

func stripComments(data []byte) []byte {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}
