package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/doctor"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/manifest"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/provision"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/pve"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/state"
)

const maxErrorWidth = 60

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(DimStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// TemplateStatus describes what the host holds under a template's vmid.
// A nil resources map means the host was not queried.
func TemplateStatus(t manifest.Template, resources map[int]pve.Resource) string {
	if resources == nil {
		return "unknown"
	}
	res, ok := resources[t.VMID]
	switch {
	case !ok:
		return "missing"
	case res.IsTemplate() && res.Name == t.Name:
		return "present on " + res.Node
	case res.IsTemplate():
		return fmt.Sprintf("vmid taken by template %q", res.Name)
	default:
		return fmt.Sprintf("vmid taken by %s %q", res.Type, res.Name)
	}
}

// TemplatesTable lists manifest templates and their state on the host.
func TemplatesTable(templates []manifest.Template, resources map[int]pve.Resource) string {
	t := newTable("VMID", "NAME", "SOURCE", "UPLOADS", "COMMANDS", "STATUS")
	for _, tmpl := range templates {
		t.Row(
			strconv.Itoa(tmpl.VMID),
			tmpl.Name,
			tmpl.URL,
			strconv.Itoa(len(tmpl.Uploads)),
			strconv.Itoa(len(tmpl.Commands)),
			TemplateStatus(tmpl, resources),
		)
	}
	return t.String()
}

// HistoryTable lists recorded runs, newest first.
func HistoryTable(runs []state.Run) string {
	t := newTable("RUN", "STARTED", "DURATION", "STATUS", "CREATED", "SKIPPED", "ERROR")
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		var created, skipped int
		for _, tr := range run.Templates {
			switch tr.Outcome {
			case string(provision.OutcomeCreated):
				created++
			case string(provision.OutcomeSkipped):
				skipped++
			}
		}
		t.Row(
			shortID(run.ID),
			run.StartedAt.Local().Format(time.DateTime),
			run.Duration.Round(time.Second).String(),
			run.Status,
			strconv.Itoa(created),
			strconv.Itoa(skipped),
			truncate(run.Error, maxErrorWidth),
		)
	}
	return t.String()
}

// PlanView renders the steps a run would take.
func PlanView(plans []provision.PlannedTemplate) string {
	var b strings.Builder
	for i, plan := range plans {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(TitleStyle.Render(plan.Template.String()))
		b.WriteString("\n")
		for _, step := range plan.Steps {
			fmt.Fprintf(&b, "  %-9s %s\n", DimStyle.Render(string(step.Step)), CommandStyle.Render(step.Command))
		}
	}
	return b.String()
}

// DoctorView renders dependency check results grouped as checked.
func DoctorView(groups []doctor.CheckGroup) string {
	var b strings.Builder
	for _, group := range groups {
		b.WriteString(TitleStyle.Render(group.Name))
		b.WriteString(" ")
		b.WriteString(SubtitleStyle.Render(group.Description))
		b.WriteString("\n")
		for _, check := range group.Checks {
			fmt.Fprintf(&b, "  %s %-18s %s\n", checkIcon(check), check.Name, DimStyle.Render(check.Message))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func checkIcon(c doctor.Check) string {
	switch {
	case c.Status == doctor.StatusOK:
		return SuccessStyle.Render(IconOK)
	case c.Blocking():
		return ErrorStyle.Render(IconFail)
	default:
		return WarningStyle.Render(IconWarn)
	}
}

// ReportView summarizes a finished run.
func ReportView(report *provision.Report) string {
	var b strings.Builder
	for _, res := range report.Results {
		switch res.Outcome {
		case provision.OutcomeCreated:
			fmt.Fprintf(&b, "%s %d (%s) created in %s, %s fetched\n", SuccessStyle.Render(IconOK),
				res.VMID, res.Name, res.Duration.Round(time.Second), humanize.IBytes(uint64(res.Bytes)))
		case provision.OutcomeSkipped:
			fmt.Fprintf(&b, "%s %d (%s) already present\n", DimStyle.Render(IconSkip), res.VMID, res.Name)
		case provision.OutcomeFailed:
			fmt.Fprintf(&b, "%s %d (%s) failed at %s\n", ErrorStyle.Render(IconFail), res.VMID, res.Name, res.Step)
		}
	}

	summary := fmt.Sprintf("%d created, %d skipped, %d failed in %s",
		report.Count(provision.OutcomeCreated),
		report.Count(provision.OutcomeSkipped),
		report.Count(provision.OutcomeFailed),
		report.Finished.Sub(report.Started).Round(time.Second))
	if report.Err != nil {
		b.WriteString(ErrorStyle.Render(summary))
	} else {
		b.WriteString(SuccessStyle.Render(summary))
	}
	b.WriteString("\n")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
