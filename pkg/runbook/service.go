package runbook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ServiceConfig carries the process-wide settings the Service needs to
// resolve filenames, compose script environments, and enforce limits.
type ServiceConfig struct {
	RunbooksDir       string
	Shell             string
	ScriptTimeoutSecs int
	MaxOutputBytes    int
	MaxRecursionDepth int
	APIBaseURL        string
}

// Service is the orchestrator binding the Parser, Validator, Authorizer,
// Workspace, Executor, Recursion Guard, and History Recorder into the
// operations the transport layer exposes.
type Service struct {
	cfg ServiceConfig
	log logrus.FieldLogger
}

// NewService constructs a Service bound to cfg. logger must not be nil.
// A MaxRecursionDepth of zero or less is replaced by the default of 50.
func NewService(cfg ServiceConfig, logger logrus.FieldLogger) *Service {
	if cfg.MaxRecursionDepth <= 0 {
		cfg.MaxRecursionDepth = 50
	}
	return &Service{cfg: cfg, log: logger}
}

// List returns the basenames of every regular .md file in the runbooks
// directory.
func (s *Service) List(_ context.Context, _ *TokenContext) ([]string, error) {
	entries, err := os.ReadDir(s.cfg.RunbooksDir)
	if err != nil {
		return nil, WrapError(KindInternal, "reading runbooks directory", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Get resolves filename and returns the runbook's raw text.
func (s *Service) Get(_ context.Context, filename string, _ *TokenContext) (string, error) {
	path, err := s.resolveFilename(filename)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", WrapError(KindInternal, "reading runbook", err)
	}
	return string(data), nil
}

// RequiredEnv parses the Environment Requirements section and returns
// the declared variables.
func (s *Service) RequiredEnv(_ context.Context, filename string, _ *TokenContext) ([]EnvRequirement, error) {
	path, err := s.resolveFilename(filename)
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapError(KindInternal, "reading runbook", err)
	}
	rb, err := ParseRunbook(filename, string(text))
	if err != nil {
		return nil, WrapError(KindValidationFailed, "parsing runbook", err)
	}

	names := make([]string, 0, len(rb.EnvRequirements))
	for name := range rb.EnvRequirements {
		names = append(names, name)
	}
	sort.Strings(names)

	reqs := make([]EnvRequirement, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, EnvRequirement{Name: name, Description: rb.EnvRequirements[name]})
	}
	return reqs, nil
}

// Validate resolves, loads, authorizes, and validates filename, recording
// and returning an ExecutionRecord. It never executes the script.
func (s *Service) Validate(ctx context.Context, filename string, tok *TokenContext, bc *Breadcrumb) (*ExecutionRecord, error) {
	path, err := s.resolveFilename(filename)
	if err != nil {
		return nil, err
	}

	rec := newRecord(OperationValidate, filename, bc)

	text, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapError(KindInternal, "reading runbook", err)
	}
	rb, err := ParseRunbook(filename, string(text))
	if err != nil {
		return nil, WrapError(KindValidationFailed, "parsing runbook", err)
	}

	if authz := Authorize(tok, rb.RequiredClaims, OperationValidate); !authz.Allowed {
		return s.recordDenial(path, rec, authz.Reason)
	}

	environ := resolvedEnviron()
	result := Validate(rb, filepath.Dir(path), environ)
	rec.Errors = result.Errors
	rec.Warnings = result.Warnings
	if result.OK {
		rec.ReturnCode = 0
	} else {
		rec.ReturnCode = ReturnCodeInternal
	}
	rec.ConfigItems = configItemsFor(rb, nil, environ)
	rec.Finish = time.Now().UTC()

	s.finalize(path, rec)
	return rec, nil
}

// Execute runs filename's script end to end: authorization, recursion
// guard, fail-fast validation, workspace setup, execution, cleanup, and
// history recording.
func (s *Service) Execute(ctx context.Context, filename string, tok *TokenContext, bc *Breadcrumb, envVars map[string]string) (*ExecutionRecord, error) {
	path, err := s.resolveFilename(filename)
	if err != nil {
		return nil, err
	}

	rec := newRecord(OperationExecute, filename, bc)

	text, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapError(KindInternal, "reading runbook", err)
	}
	rb, err := ParseRunbook(filename, string(text))
	if err != nil {
		return nil, WrapError(KindValidationFailed, "parsing runbook", err)
	}

	if authz := Authorize(tok, rb.RequiredClaims, OperationExecute); !authz.Allowed {
		return s.recordDenial(path, rec, authz.Reason)
	}

	recErr, extendedStack := CheckRecursion(bc.RecursionStack, filename, s.cfg.MaxRecursionDepth)
	if recErr != nil {
		rec.ReturnCode = ReturnCodeInternal
		rec.Errors = []string{recErr.Message}
		rec.Finish = time.Now().UTC()
		s.finalize(path, rec)
		return rec, nil
	}
	bc.RecursionStack = extendedStack
	rec.Breadcrumb = *bc

	runbookDir := filepath.Dir(path)
	environ := resolvedEnviron()
	for name, value := range envVars {
		environ[name] = value
	}
	result := Validate(rb, runbookDir, environ)
	if !result.OK {
		rec.Errors = result.Errors
		rec.Warnings = result.Warnings
		rec.ReturnCode = ReturnCodeInternal
		rec.Finish = time.Now().UTC()
		s.finalize(path, rec)
		return rec, nil
	}
	rec.Warnings = append(rec.Warnings, result.Warnings...)
	rec.ConfigItems = configItemsFor(rb, envVars, environ)

	outcome, execErr := s.runInWorkspace(ctx, rb, runbookDir, tok, bc, envVars)
	if execErr != nil {
		rec.ReturnCode = ReturnCodeInternal
		rec.Errors = append(rec.Errors, execErr.Error())
		rec.Finish = time.Now().UTC()
		s.finalize(path, rec)
		return rec, nil
	}

	rec.ReturnCode = outcome.ReturnCode
	rec.Stdout = outcome.Stdout
	rec.Stderr = outcome.Stderr
	rec.Warnings = append(rec.Warnings, outcome.Warnings...)
	rec.Finish = time.Now().UTC()

	s.finalize(path, rec)
	return rec, nil
}

func (s *Service) runInWorkspace(ctx context.Context, rb *Runbook, runbookDir string, tok *TokenContext, bc *Breadcrumb, envVars map[string]string) (ExecutionOutcome, error) {
	ws, err := NewWorkspace()
	if err != nil {
		return ExecutionOutcome{}, err
	}
	defer func() {
		if derr := ws.Dispose(); derr != nil {
			s.log.WithError(derr).Warn("failed to dispose workspace")
		}
	}()

	if errs := ws.Populate(runbookDir, rb.FileRequirements.Input); len(errs) > 0 {
		return ExecutionOutcome{}, fmt.Errorf("populating workspace: %s", strings.Join(errs, "; "))
	}

	scriptPath, err := ws.WriteScript(rb.Script)
	if err != nil {
		return ExecutionOutcome{}, err
	}

	execCfg := ExecutorConfig{
		Shell:          s.cfg.Shell,
		TimeoutSeconds: s.cfg.ScriptTimeoutSecs,
		MaxOutputBytes: s.cfg.MaxOutputBytes,
		APIBaseURL:     s.cfg.APIBaseURL,
		RawBearer:      tok.RawBearer,
		CorrelationID:  bc.CorrelationID,
		RecursionStack: bc.RecursionStack,
		CallerEnv:      envVars,
	}

	return Execute(ctx, scriptPath, ws.Path, execCfg)
}

// resolveFilename enforces the basename-only, no-traversal rule and
// confirms the result is a regular file under the runbooks directory.
func (s *Service) resolveFilename(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", NewError(KindBadFilename, fmt.Sprintf("invalid filename: %q", filename))
	}
	if strings.Contains(filename, "..") {
		return "", NewError(KindBadFilename, fmt.Sprintf("invalid filename: %q", filename))
	}

	path := filepath.Join(s.cfg.RunbooksDir, filename)
	absDir, err := filepath.Abs(s.cfg.RunbooksDir)
	if err != nil {
		return "", WrapError(KindInternal, "resolving runbooks directory", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", WrapError(KindInternal, "resolving filename", err)
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", NewError(KindBadFilename, fmt.Sprintf("invalid filename: %q", filename))
	}

	info, err := os.Stat(absPath)
	if err != nil || !info.Mode().IsRegular() {
		return "", NewError(KindNotFound, fmt.Sprintf("runbook %q not found", filename))
	}
	return absPath, nil
}

func newRecord(operation, filename string, bc *Breadcrumb) *ExecutionRecord {
	return &ExecutionRecord{
		Start:         time.Now().UTC(),
		Operation:     operation,
		Runbook:       filename,
		Breadcrumb:    *bc,
		CorrelationID: bc.CorrelationID,
		Errors:        []string{},
		Warnings:      []string{},
	}
}

func (s *Service) recordDenial(path string, rec *ExecutionRecord, reason string) (*ExecutionRecord, error) {
	rec.ReturnCode = ReturnCodeAuthorizationDenied
	rec.Errors = []string{reason}
	rec.Stderr = reason
	rec.Finish = time.Now().UTC()
	s.finalize(path, rec)
	return rec, nil
}

func (s *Service) finalize(path string, rec *ExecutionRecord) {
	LogHistory(s.log, rec)
	if err := AppendHistory(path, rec); err != nil {
		rec.Warnings = append(rec.Warnings, "history file append failed")
		s.log.WithError(err).Warn("failed to append history to runbook file")
	}
}

// configItemsFor captures one ConfigItem per declared Environment
// Requirement, in the order the validator resolved them: a caller-supplied
// env_vars override wins (source "caller"), otherwise the value comes from
// the resolved process environment (source "env"). A declared variable
// absent from both is omitted; Validate would already have failed the
// record for it.
func configItemsFor(rb *Runbook, callerEnv, environ map[string]string) []ConfigItem {
	names := make([]string, 0, len(rb.EnvRequirements))
	for name := range rb.EnvRequirements {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]ConfigItem, 0, len(names))
	for _, name := range names {
		if value, ok := callerEnv[name]; ok {
			items = append(items, ConfigItem{Name: name, Value: value, Source: "caller"})
			continue
		}
		if value, ok := environ[name]; ok {
			items = append(items, ConfigItem{Name: name, Value: value, Source: "env"})
		}
	}
	return items
}

// resolvedEnviron snapshots the process environment as a map for the
// validator's "declared variable is present" check. The executor never
// uses this; it only composes a fresh child environment.
func resolvedEnviron() map[string]string {
	result := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			result[kv[:idx]] = kv[idx+1:]
		}
	}
	return result
}
