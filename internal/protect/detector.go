package protect

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/warden/pkg/models"
)

// Policy is the guardrail rule set. Zero value means "defaults only".
type Policy struct {
	ProtectedPaths   []string `yaml:"protected_paths"`
	PathKeywords     []string `yaml:"path_keywords"`
	FileTypes        []string `yaml:"file_types"`
	ForbiddenContent []string `yaml:"forbidden_content"`
}

// wardenConfig is the shape of the .warden.yaml policy file.
type wardenConfig struct {
	Guardrails Policy `yaml:"guardrails"`
}

// Violation describes one guardrail match within a changeset.
type Violation struct {
	// Path is the offending file path.
	Path string
	// Reason explains which rule matched.
	Reason string
}

func (v Violation) String() string {
	return v.Path + ": " + v.Reason
}

// Detector scans paths and changeset content against the guardrail policy.
// A match is terminal: the verification engine reports BLOCKED and never
// auto-retries.
type Detector struct {
	mu        sync.RWMutex
	paths     []string
	keywords  []string
	fileTypes []string
	content   []*regexp.Regexp
}

// NewDetector creates a detector with the default policy.
func NewDetector() *Detector {
	d := &Detector{
		paths:     append([]string{}, DefaultProtectedPaths...),
		keywords:  append([]string{}, DefaultPathKeywords...),
		fileTypes: append([]string{}, DefaultFileTypes...),
	}
	for _, expr := range DefaultForbiddenContent {
		d.content = append(d.content, regexp.MustCompile(expr))
	}
	return d
}

// LoadPolicy merges rules from a .warden.yaml file into the detector.
func (d *Detector) LoadPolicy(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read guardrail policy: %w", err)
	}

	var cfg wardenConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse guardrail policy: %w", err)
	}

	compiled := make([]*regexp.Regexp, 0, len(cfg.Guardrails.ForbiddenContent))
	for _, expr := range cfg.Guardrails.ForbiddenContent {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("compile forbidden pattern %q: %w", expr, err)
		}
		compiled = append(compiled, re)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths = append(d.paths, cfg.Guardrails.ProtectedPaths...)
	d.keywords = append(d.keywords, cfg.Guardrails.PathKeywords...)
	d.fileTypes = append(d.fileTypes, cfg.Guardrails.FileTypes...)
	d.content = append(d.content, compiled...)
	return nil
}

// CheckPath reports whether a path is protected, with the matching rule.
func (d *Detector) CheckPath(path string) (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// filepath.ToSlash only rewrites the host separator, so backslash
	// paths must be normalized explicitly to match on every platform.
	normalized := strings.ReplaceAll(path, "\\", "/")
	lower := strings.ToLower(normalized)

	for _, pattern := range d.paths {
		if globMatch(normalized, pattern) {
			return true, "path matches protected pattern " + pattern
		}
	}
	for _, kw := range d.keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true, "path contains protected keyword " + kw
		}
	}
	ext := strings.ToLower(filepath.Ext(normalized))
	for _, protected := range d.fileTypes {
		if ext == strings.ToLower(protected) {
			return true, "file type is protected: " + protected
		}
	}
	return false, ""
}

// CheckContent reports whether content matches a forbidden pattern.
func (d *Detector) CheckContent(content string) (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, re := range d.content {
		if re.MatchString(content) {
			return true, "content matches forbidden pattern " + re.String()
		}
	}
	return false, ""
}

// escapesRoot reports whether a changeset path would land outside the tree
// it is applied to: absolute paths, drive-letter paths, and paths whose
// ".." segments climb above the root.
func escapesRoot(path string) bool {
	norm := strings.ReplaceAll(path, "\\", "/")
	if norm == "" || strings.HasPrefix(norm, "/") {
		return true
	}
	if len(norm) >= 2 && norm[1] == ':' {
		return true
	}

	depth := 0
	for _, seg := range strings.Split(norm, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}

// ScanChangeset checks every file in the changeset against the policy and
// returns all violations found.
func (d *Detector) ScanChangeset(cs *models.Changeset) []Violation {
	if cs == nil {
		return nil
	}

	var violations []Violation
	for _, f := range cs.Files {
		if escapesRoot(f.Path) {
			violations = append(violations, Violation{Path: f.Path, Reason: "path escapes the workspace root"})
			continue
		}
		if hit, reason := d.CheckPath(f.Path); hit {
			violations = append(violations, Violation{Path: f.Path, Reason: reason})
			continue
		}
		if f.Delete {
			continue
		}
		if hit, reason := d.CheckContent(f.Content); hit {
			violations = append(violations, Violation{Path: f.Path, Reason: reason})
		}
	}
	return violations
}
