package doctor

import (
	"sync"
)

// Checker provides dependency checking functionality.
type Checker struct {
	executor   CommandExecutor
	scratchDir string
}

// NewChecker creates a new Checker with the real command executor.
func NewChecker() *Checker {
	return &Checker{
		executor: &RealExecutor{},
	}
}

// NewCheckerWithExecutor creates a new Checker with a custom executor (for testing).
func NewCheckerWithExecutor(exec CommandExecutor) *Checker {
	return &Checker{
		executor: exec,
	}
}

// SetScratchDir sets the scratch directory to check.
func (c *Checker) SetScratchDir(dir string) {
	c.scratchDir = dir
}

// CheckAll runs all checks and returns groups with results.
func (c *Checker) CheckAll() []CheckGroup {
	groups := GetGroups()
	result := make([]CheckGroup, 0, len(groups))
	for _, group := range groups {
		result = append(result, c.CheckGroup(group.ID))
	}
	return result
}

// CheckAllAsync runs all checks concurrently and returns groups with results.
func (c *Checker) CheckAllAsync() []CheckGroup {
	groups := GetGroups()
	result := make([]CheckGroup, len(groups))
	var wg sync.WaitGroup

	for i, group := range groups {
		wg.Add(1)
		go func(idx int, g CheckGroup) {
			defer wg.Done()
			result[idx] = c.CheckGroup(g.ID)
		}(i, group)
	}

	wg.Wait()
	return result
}

// CheckGroup runs all checks for a specific group.
func (c *Checker) CheckGroup(groupID string) CheckGroup {
	def, ok := GetGroupDefinition(groupID)
	if !ok {
		return CheckGroup{
			ID:   groupID,
			Name: "Unknown",
		}
	}

	group := CheckGroup{
		ID:          groupID,
		Name:        def.Name,
		Description: def.Description,
	}

	for _, checkID := range def.CheckIDs {
		group.Checks = append(group.Checks, c.runCheck(checkID))
	}

	return group
}

// runCheck runs a specific check by ID.
func (c *Checker) runCheck(checkID string) Check {
	switch checkID {
	case IDQm:
		return CheckQm(c.executor)
	case IDPvesh:
		return CheckPvesh(c.executor)
	case IDVirtCustomize:
		return CheckVirtCustomize(c.executor)
	case IDKVM:
		return CheckKVM(c.executor)
	case IDScratchDir:
		return CheckScratchDir(c.executor, c.scratchDir)
	case IDUnzip:
		return CheckUnzip(c.executor)
	case IDXz:
		return CheckXz(c.executor)
	case IDTar:
		return CheckTar(c.executor)
	default:
		return Check{
			ID:      checkID,
			Name:    checkID,
			Status:  StatusError,
			Message: "unknown check",
		}
	}
}

// GetCheck runs a single check by ID.
func (c *Checker) GetCheck(checkID string) Check {
	return c.runCheck(checkID)
}

// Summary represents an overall health summary.
type Summary struct {
	Total    int
	OK       int
	Missing  int
	Warnings int
	Errors   int
	Blocking int
}

// GetSummary returns a summary of check results.
func (c *Checker) GetSummary(groups []CheckGroup) Summary {
	var summary Summary

	for _, group := range groups {
		for _, check := range group.Checks {
			summary.Total++
			switch check.Status {
			case StatusOK:
				summary.OK++
			case StatusMissing:
				summary.Missing++
			case StatusWarning:
				summary.Warnings++
			case StatusError:
				summary.Errors++
			}
			if check.Blocking() {
				summary.Blocking++
			}
		}
	}

	return summary
}

// HasIssues returns true if any required check failed.
func (c *Checker) HasIssues(groups []CheckGroup) bool {
	return c.GetSummary(groups).Blocking > 0
}
