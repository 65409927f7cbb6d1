package manifest

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Severity represents the severity of a lint issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a problem found in a loaded manifest.
type Issue struct {
	Template string   `json:"template,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result holds all lint results.
type Result struct {
	Issues []Issue `json:"issues"`
}

// HasErrors returns true if there are any error-level issues.
func (r *Result) HasErrors() bool {
	return r.ErrorCount() > 0
}

// ErrorCount returns the number of error-level issues.
func (r *Result) ErrorCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			count++
		}
	}
	return count
}

// WarningCount returns the number of warning-level issues.
func (r *Result) WarningCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityWarning {
			count++
		}
	}
	return count
}

func (r *Result) add(t *Template, sev Severity, format string, args ...any) {
	issue := Issue{Message: fmt.Sprintf(format, args...), Severity: sev}
	if t != nil {
		issue.Template = t.String()
	}
	r.Issues = append(r.Issues, issue)
}

// Lint checks a loaded manifest for problems that parsing alone cannot catch:
// collisions between templates, missing upload sources and unused aliases.
func Lint(m *Manifest) *Result {
	result := &Result{Issues: []Issue{}}

	byVMID := make(map[int]string)
	byName := make(map[string]int)
	for i := range m.Templates {
		t := &m.Templates[i]

		if other, ok := byVMID[t.VMID]; ok {
			result.add(t, SeverityError, "vmid %d is also used by template %q", t.VMID, other)
		} else {
			byVMID[t.VMID] = t.Name
		}
		if other, ok := byName[t.Name]; ok {
			result.add(t, SeverityError, "name %q is also used by vmid %d", t.Name, other)
		} else {
			byName[t.Name] = t.VMID
		}

		remotes := make(map[string]bool)
		for _, u := range t.Uploads {
			info, err := os.Stat(u.Local)
			switch {
			case err != nil:
				result.add(t, SeverityError, "upload source %s: %v", u.Local, err)
			case info.IsDir():
				result.add(t, SeverityError, "upload source %s is a directory", u.Local)
			}
			if remotes[u.Remote] {
				result.add(t, SeverityWarning, "guest path %s is uploaded more than once", u.Remote)
			}
			remotes[u.Remote] = true
		}

		if t.Unpack != "" && (!strings.Contains(t.Unpack, "{dl}") || !strings.Contains(t.Unpack, "{img}")) {
			result.add(t, SeverityWarning, "unpack command does not reference both {dl} and {img}")
		}
	}

	used := make(map[string]bool)
	for _, t := range m.Templates {
		for _, name := range t.AliasRefs {
			used[name] = true
		}
	}
	var unused []string
	for name := range m.Aliases {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)
	for _, name := range unused {
		result.add(nil, SeverityWarning, "alias %q is never used", name)
	}

	return result
}
