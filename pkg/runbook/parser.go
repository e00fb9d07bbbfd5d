package runbook

import (
	"fmt"
	"regexp"
	"strings"
)

// requiredSections lists the H1 headings every runbook must carry exactly
// once, in canonical order, excluding the optional Required Claims section.
var requiredSections = []string{
	"Environment Requirements",
	"File System Requirements",
	"Script",
	"History",
}

var h1Pattern = regexp.MustCompile(`(?m)^# (.+?)\s*$`)

var fencePattern = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\r?\n(.*?)```")

var envVarNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sections splits text into an ordered map of H1 heading to body. The
// body of a section runs until the next H1 heading or end of file.
func sections(text string) (order []string, bodies map[string]string) {
	bodies = make(map[string]string)
	matches := h1Pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, bodies
	}
	for i, m := range matches {
		name := strings.TrimSpace(text[m[2]:m[3]])
		bodyStart := m[1]
		bodyEnd := len(text)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		body := text[bodyStart:bodyEnd]
		if _, exists := bodies[name]; !exists {
			order = append(order, name)
		}
		bodies[name] = body
	}
	return order, bodies
}

// fencedBlock returns the content of the first fenced code block in body
// tagged with the given language, or ok=false if none is present.
func fencedBlock(body, language string) (content string, ok bool) {
	for _, m := range fencePattern.FindAllStringSubmatch(body, -1) {
		tag := strings.ToLower(strings.TrimSpace(m[1]))
		if tag == language {
			return m[2], true
		}
	}
	return "", false
}

// fencedBlockAny returns the first fenced block matching any of the
// given language tags.
func fencedBlockAny(body string, languages ...string) (content string, ok bool) {
	for _, m := range fencePattern.FindAllStringSubmatch(body, -1) {
		tag := strings.ToLower(strings.TrimSpace(m[1]))
		for _, lang := range languages {
			if tag == lang {
				return m[2], true
			}
		}
	}
	return "", false
}

// yamlMapping parses the restricted subset described by the dialect: flat
// `key: value` lines, with an optional run of `- item` lines immediately
// following a key to represent a list value. No anchors, tags, or nested
// mappings are supported; this is intentionally not a general YAML parser.
func yamlMapping(block string) (map[string]interface{}, error) {
	result := make(map[string]interface{})
	lines := strings.Split(block, "\n")
	var currentKey string
	var currentList []string
	flushList := func() {
		if currentKey != "" && currentList != nil {
			result[currentKey] = currentList
		}
		currentList = nil
	}
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || trimmed == "-" {
			if currentKey == "" {
				return nil, fmt.Errorf("list item %q has no preceding key", trimmed)
			}
			item := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
			currentList = append(currentList, item)
			continue
		}
		idx := strings.Index(trimmed, ":")
		if idx < 0 {
			return nil, fmt.Errorf("malformed line %q: expected key: value", trimmed)
		}
		flushList()
		key := strings.TrimSpace(trimmed[:idx])
		value := strings.TrimSpace(trimmed[idx+1:])
		if key == "" {
			return nil, fmt.Errorf("malformed line %q: empty key", trimmed)
		}
		currentKey = key
		if value == "" {
			currentList = []string{}
			continue
		}
		result[key] = value
		currentKey = ""
	}
	flushList()
	return result, nil
}

// scriptOf returns the Script section's fenced shell block, or ok=false
// if missing or whitespace-only.
func scriptOf(text string) (script string, ok bool) {
	_, bodies := sections(text)
	body, present := bodies["Script"]
	if !present {
		return "", false
	}
	content, found := fencedBlockAny(body, "sh", "zsh", "bash")
	if !found {
		return "", false
	}
	if strings.TrimSpace(content) == "" {
		return "", false
	}
	return content, true
}

// requiredClaimsOf parses the optional Required Claims section. A missing
// or empty section returns a nil map, signalling open access.
func requiredClaimsOf(text string) (ClaimSet, error) {
	_, bodies := sections(text)
	body, present := bodies["Required Claims"]
	if !present {
		return nil, nil
	}
	block, found := fencedBlock(body, "yaml")
	if !found {
		return nil, nil
	}
	mapping, err := yamlMapping(block)
	if err != nil {
		return nil, fmt.Errorf("parsing required claims: %w", err)
	}
	if len(mapping) == 0 {
		return nil, nil
	}
	claims := make(ClaimSet, len(mapping))
	for claim, raw := range mapping {
		switch v := raw.(type) {
		case string:
			claims[claim] = splitCommaList(v)
		case []string:
			claims[claim] = v
		}
	}
	return claims, nil
}

// fileRequirementsOf parses the File System Requirements yaml block.
// Missing keys default to empty lists.
func fileRequirementsOf(block string) (FileRequirements, error) {
	mapping, err := yamlMapping(block)
	if err != nil {
		return FileRequirements{}, err
	}
	req := FileRequirements{Input: []string{}, Output: []string{}}
	if v, ok := mapping["Input"]; ok {
		req.Input = toStringList(v)
	}
	if v, ok := mapping["Output"]; ok {
		req.Output = toStringList(v)
	}
	return req, nil
}

func toStringList(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case string:
		if t == "" {
			return []string{}
		}
		return []string{t}
	default:
		return []string{}
	}
}

func splitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseRunbook extracts the full logical structure of a runbook document
// from its raw text. filename is recorded as-is for later reference; it
// is not validated here (see Service.resolveFilename for that).
func ParseRunbook(filename, text string) (*Runbook, error) {
	order, bodies := sections(text)
	if len(order) == 0 {
		return nil, NewError(KindValidationFailed, "no sections found in runbook")
	}

	name := order[0]

	rb := &Runbook{
		Filename:        filename,
		Name:            name,
		RawText:         text,
		EnvRequirements: map[string]string{},
	}

	if body, ok := bodies["Environment Requirements"]; ok {
		if block, found := fencedBlock(body, "yaml"); found {
			mapping, err := yamlMapping(block)
			if err != nil {
				return nil, fmt.Errorf("parsing environment requirements: %w", err)
			}
			for k, v := range mapping {
				if s, ok := v.(string); ok {
					rb.EnvRequirements[k] = s
				} else {
					rb.EnvRequirements[k] = ""
				}
			}
		}
	}

	if body, ok := bodies["File System Requirements"]; ok {
		if block, found := fencedBlock(body, "yaml"); found {
			req, err := fileRequirementsOf(block)
			if err != nil {
				return nil, fmt.Errorf("parsing file system requirements: %w", err)
			}
			rb.FileRequirements = req
		}
	}

	claims, err := requiredClaimsOf(text)
	if err != nil {
		return nil, err
	}
	rb.RequiredClaims = claims

	if script, ok := scriptOf(text); ok {
		rb.Script = strings.TrimSpace(script)
	}

	return rb, nil
}

// isValidEnvVarName reports whether name matches the caller-supplied
// environment variable name grammar.
func isValidEnvVarName(name string) bool {
	return envVarNamePattern.MatchString(name)
}
