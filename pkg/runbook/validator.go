package runbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationResult is the non-fail-fast outcome of Validate.
type ValidationResult struct {
	OK       bool
	Errors   []string
	Warnings []string
}

// Validate runs every check in order, always to completion, and reports
// a combined result. It never executes the script and never modifies
// the runbook file.
func Validate(rb *Runbook, runbookDir string, resolvedEnv map[string]string) ValidationResult {
	var errs, warns []string

	order, bodies := sections(rb.RawText)
	present := make(map[string]bool, len(order))
	for _, name := range order {
		present[name] = true
	}

	for _, section := range requiredSections {
		body, ok := bodies[section]
		if !ok {
			errs = append(errs, fmt.Sprintf("missing required section %q", section))
			continue
		}
		if section == "History" {
			continue
		}
		if strings.TrimSpace(body) == "" {
			errs = append(errs, fmt.Sprintf("required section %q is empty", section))
		}
	}

	if _, ok := bodies["Environment Requirements"]; ok {
		for name := range rb.EnvRequirements {
			if _, ok := resolvedEnv[name]; !ok {
				errs = append(errs, fmt.Sprintf("required environment variable %q is not set", name))
			}
		}
	}

	if body, ok := bodies["File System Requirements"]; ok {
		if block, found := fencedBlock(body, "yaml"); found {
			req, err := fileRequirementsOf(block)
			if err != nil {
				errs = append(errs, fmt.Sprintf("file system requirements: %v", err))
			} else {
				for _, rel := range req.Input {
					if rel == "" {
						continue
					}
					resolved, err := resolveWithinDir(runbookDir, rel)
					if err != nil {
						errs = append(errs, fmt.Sprintf("input path %q: %v", rel, err))
						continue
					}
					if _, err := os.Stat(resolved); err != nil {
						errs = append(errs, fmt.Sprintf("input path %q does not exist", rel))
					}
				}
			}
		}
	}

	if rb.Script == "" {
		errs = append(errs, "script block is missing or empty")
	}

	return ValidationResult{
		OK:       len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
	}
}

// resolveWithinDir resolves rel against base and rejects any result that
// escapes base, matching the Workspace.populate containment rule.
func resolveWithinDir(base, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("must be a relative path")
	}
	joined := filepath.Join(base, rel)
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	rel2, err := filepath.Rel(absBase, absJoined)
	if err != nil || strings.HasPrefix(rel2, "..") {
		return "", fmt.Errorf("resolves outside runbook directory")
	}
	return absJoined, nil
}
