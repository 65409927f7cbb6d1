package doctor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockExecutor is a mock command executor for testing.
type MockExecutor struct {
	LookPathFunc       func(file string) (string, error)
	RunFunc            func(name string, args ...string) (string, error)
	CombinedOutputFunc func(name string, args ...string) ([]byte, error)
	FileExistsFunc     func(path string) bool
}

func (m *MockExecutor) LookPath(file string) (string, error) {
	if m.LookPathFunc != nil {
		return m.LookPathFunc(file)
	}
	return "/usr/bin/" + file, nil
}

func (m *MockExecutor) Run(name string, args ...string) (string, error) {
	if m.RunFunc != nil {
		return m.RunFunc(name, args...)
	}
	return "1.0.0", nil
}

func (m *MockExecutor) CombinedOutput(name string, args ...string) ([]byte, error) {
	if m.CombinedOutputFunc != nil {
		return m.CombinedOutputFunc(name, args...)
	}
	return nil, nil
}

func (m *MockExecutor) FileExists(path string) bool {
	if m.FileExistsFunc != nil {
		return m.FileExistsFunc(path)
	}
	return true
}

func only(binaries ...string) func(string) (string, error) {
	return func(file string) (string, error) {
		for _, b := range binaries {
			if b == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestCheckVirtCustomize_Installed(t *testing.T) {
	exec := &MockExecutor{
		LookPathFunc: only("virt-customize"),
		RunFunc: func(name string, args ...string) (string, error) {
			assert.Equal(t, "/usr/bin/virt-customize", name)
			assert.Equal(t, []string{"--version"}, args)
			return "virt-customize 1.48.6\n", nil
		},
	}

	check := CheckVirtCustomize(exec)

	assert.Equal(t, IDVirtCustomize, check.ID)
	assert.True(t, check.Required)
	assert.Equal(t, StatusOK, check.Status)
	assert.Equal(t, "1.48.6", check.Message)
}

func TestCheckVirtCustomize_NotInstalled(t *testing.T) {
	exec := &MockExecutor{LookPathFunc: only()}

	check := CheckVirtCustomize(exec)

	assert.Equal(t, StatusMissing, check.Status)
	assert.Equal(t, "not installed", check.Message)
	assert.True(t, check.Blocking())
	require.NotNil(t, check.FixCommand)
	assert.Equal(t, "apt-get install -y libguestfs-tools", check.FixCommand.Command)
}

func TestCheckVirtCustomize_VersionFails(t *testing.T) {
	exec := &MockExecutor{
		RunFunc: func(name string, args ...string) (string, error) {
			return "", errors.New("exit status 1")
		},
	}

	check := CheckVirtCustomize(exec)

	assert.Equal(t, StatusOK, check.Status)
	assert.Equal(t, "installed (version unknown)", check.Message)
}

func TestCheckPvesh_ReportsPVEVersion(t *testing.T) {
	exec := &MockExecutor{
		LookPathFunc: only("pvesh"),
		RunFunc: func(name string, args ...string) (string, error) {
			require.Equal(t, "pveversion", name)
			return "pve-manager/8.2.4/faa83925c9641325 (running kernel: 6.8.8-2-pve)\n", nil
		},
	}

	check := CheckPvesh(exec)

	assert.Equal(t, StatusOK, check.Status)
	assert.Equal(t, "pve-manager 8.2.4", check.Message)
	assert.Nil(t, check.FixCommand, "Proxmox tools are not installable from here")
}

func TestCheckQm_NotInstalled(t *testing.T) {
	check := CheckQm(&MockExecutor{LookPathFunc: only()})

	assert.Equal(t, StatusMissing, check.Status)
	assert.Nil(t, check.FixCommand)
	assert.True(t, check.Blocking())
}

func TestCheckKVM(t *testing.T) {
	present := CheckKVM(&MockExecutor{})
	assert.Equal(t, StatusOK, present.Status)

	absent := CheckKVM(&MockExecutor{FileExistsFunc: func(string) bool { return false }})
	assert.Equal(t, StatusWarning, absent.Status)
	assert.False(t, absent.Blocking())
}

func TestCheckScratchDir(t *testing.T) {
	exists := CheckScratchDir(&MockExecutor{}, "/var/tmp/pvetmpl")
	assert.Equal(t, StatusOK, exists.Status)
	assert.Equal(t, "/var/tmp/pvetmpl", exists.Message)

	missing := CheckScratchDir(&MockExecutor{FileExistsFunc: func(string) bool { return false }}, "/var/tmp/pvetmpl")
	assert.Equal(t, StatusWarning, missing.Status)

	unset := CheckScratchDir(&MockExecutor{}, "")
	assert.Equal(t, StatusError, unset.Status)
}

func TestCheckUnpackTools_OptionalWhenMissing(t *testing.T) {
	exec := &MockExecutor{LookPathFunc: only()}

	for _, check := range []Check{CheckUnzip(exec), CheckXz(exec), CheckTar(exec)} {
		t.Run(check.ID, func(t *testing.T) {
			assert.False(t, check.Required)
			assert.Equal(t, StatusWarning, check.Status)
			assert.Equal(t, "not installed (optional)", check.Message)
			assert.False(t, check.Blocking())
			assert.NotNil(t, check.FixCommand)
		})
	}
}

func TestCheckXz_Installed(t *testing.T) {
	exec := &MockExecutor{
		RunFunc: func(name string, args ...string) (string, error) {
			return "xz (XZ Utils) 5.4.1\nliblzma 5.4.1\n", nil
		},
	}

	check := CheckXz(exec)

	assert.Equal(t, StatusOK, check.Status)
	assert.Equal(t, "5.4.1", check.Message)
}

func TestChecker_CheckGroup(t *testing.T) {
	exec := &MockExecutor{
		LookPathFunc: only("qm", "pvesh"),
		RunFunc: func(name string, args ...string) (string, error) {
			return "pve-manager/8.2.4/faa83925c9641325", nil
		},
	}

	checker := NewCheckerWithExecutor(exec)
	group := checker.CheckGroup(GroupProxmox)

	assert.Equal(t, GroupProxmox, group.ID)
	assert.Equal(t, "Proxmox VE", group.Name)
	require.Len(t, group.Checks, 2)
	assert.Equal(t, IDQm, group.Checks[0].ID)
	assert.Equal(t, StatusOK, group.Checks[0].Status)
	assert.Equal(t, StatusOK, group.Checks[1].Status)
}

func TestChecker_CheckGroup_Unknown(t *testing.T) {
	group := NewCheckerWithExecutor(&MockExecutor{}).CheckGroup("nope")

	assert.Equal(t, "Unknown", group.Name)
	assert.Empty(t, group.Checks)
}

func TestChecker_CheckAllAsync_PreservesOrder(t *testing.T) {
	checker := NewCheckerWithExecutor(&MockExecutor{})
	checker.SetScratchDir("/var/tmp/pvetmpl")

	groups := checker.CheckAllAsync()

	require.Len(t, groups, 3)
	assert.Equal(t, GetAllGroupIDs(), []string{groups[0].ID, groups[1].ID, groups[2].ID})
	assert.False(t, checker.HasIssues(groups))
}

func TestChecker_GetSummary(t *testing.T) {
	groups := []CheckGroup{
		{
			ID: GroupCustomize,
			Checks: []Check{
				{ID: "test1", Status: StatusOK},
				{ID: "test2", Status: StatusMissing, Required: true},
				{ID: "test3", Status: StatusWarning},
				{ID: "test4", Status: StatusMissing},
			},
		},
	}

	summary := NewChecker().GetSummary(groups)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.OK)
	assert.Equal(t, 2, summary.Missing)
	assert.Equal(t, 1, summary.Warnings)
	assert.Equal(t, 0, summary.Errors)
	assert.Equal(t, 1, summary.Blocking)
}

func TestChecker_HasIssues(t *testing.T) {
	tests := []struct {
		name     string
		groups   []CheckGroup
		expected bool
	}{
		{
			name: "no issues",
			groups: []CheckGroup{
				{Checks: []Check{{Status: StatusOK, Required: true}, {Status: StatusOK}}},
			},
			expected: false,
		},
		{
			name: "required missing",
			groups: []CheckGroup{
				{Checks: []Check{{Status: StatusOK}, {Status: StatusMissing, Required: true}}},
			},
			expected: true,
		},
		{
			name: "required error",
			groups: []CheckGroup{
				{Checks: []Check{{Status: StatusOK}, {Status: StatusError, Required: true}}},
			},
			expected: true,
		},
		{
			name: "optional missing",
			groups: []CheckGroup{
				{Checks: []Check{{Status: StatusOK}, {Status: StatusMissing}}},
			},
			expected: false,
		},
		{
			name: "warning only",
			groups: []CheckGroup{
				{Checks: []Check{{Status: StatusOK}, {Status: StatusWarning, Required: true}}},
			},
			expected: false,
		},
	}

	checker := NewChecker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.HasIssues(tt.groups))
		})
	}
}

func TestCheckStatus_String(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "missing", StatusMissing.String())
	assert.Equal(t, "error", StatusError.String())
	assert.Equal(t, "warning", StatusWarning.String())
	assert.Equal(t, "unknown", CheckStatus(42).String())
}

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		output   string
		expected string
	}{
		{"tar (GNU tar) 1.34", "1.34"},
		{"version 2.3.4", "2.3.4"},
		{"tool 1.2.3-beta", "1.2.3-beta"},
		{"no version here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractVersion(tt.output, nil))
		})
	}
}
