package runbook

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const historyHeading = "# History"

// AppendHistory appends rec as a minified JSON line under the runbook's
// History heading, creating the heading if missing. Secret config items
// are masked before serialization. A write failure is returned as an
// error, which Service.finalize records as a warning without failing the
// operation; the log emission in LogHistory is the system of record.
func AppendHistory(path string, rec *ExecutionRecord) error {
	masked := maskSecrets(rec)
	line, err := json.Marshal(masked)
	if err != nil {
		return fmt.Errorf("encoding execution record: %w", err)
	}

	existing, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading runbook file: %w", err)
	}

	text := string(existing)
	if !strings.Contains(text, historyHeading) {
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		text += historyHeading + "\n"
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	text += string(line) + "\n"

	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return fmt.Errorf("writing runbook file: %w", err)
	}
	return nil
}

// LogHistory emits the full execution record as a single structured log
// event at INFO level, independently of file append success. This is
// the authoritative audit trail.
func LogHistory(logger logrus.FieldLogger, rec *ExecutionRecord) {
	masked := maskSecrets(rec)
	logger.WithFields(logrus.Fields{
		"operation":      rec.Operation,
		"runbook":        rec.Runbook,
		"return_code":    rec.ReturnCode,
		"correlation_id": rec.CorrelationID,
		"start":          rec.Start,
		"finish":         rec.Finish,
		"breadcrumb":     rec.Breadcrumb,
		"config_items":   masked.ConfigItems,
		"stdout":         rec.Stdout,
		"stderr":         rec.Stderr,
		"errors":         rec.Errors,
		"warnings":       rec.Warnings,
	}).Info("runbook execution record")
}

// maskSecrets returns a shallow copy of rec with secret-flagged
// config_items' values replaced by a mask placeholder.
func maskSecrets(rec *ExecutionRecord) *ExecutionRecord {
	copyRec := *rec
	items := make([]ConfigItem, len(rec.ConfigItems))
	for i, item := range rec.ConfigItems {
		if isSecretConfigItem(item.Name) {
			item.Value = "***"
		}
		items[i] = item
	}
	copyRec.ConfigItems = items
	return &copyRec
}

func isSecretConfigItem(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range []string{"TOKEN", "SECRET", "PASSWORD", "KEY", "CREDENTIAL"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// ParseLastHistoryEntry reads a runbook file line by line and returns the
// most recent history entry: the last line starting with "{", decoded as
// an ExecutionRecord. The whole file is scanned.
func ParseLastHistoryEntry(path string) (*ExecutionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lastJSONLine string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "{") {
			lastJSONLine = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if lastJSONLine == "" {
		return nil, NewError(KindNotFound, "no history entry found")
	}

	var rec ExecutionRecord
	if err := json.Unmarshal([]byte(lastJSONLine), &rec); err != nil {
		return nil, fmt.Errorf("decoding history entry: %w", err)
	}
	return &rec, nil
}
