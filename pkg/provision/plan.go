package provision

import (
	"fmt"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/customize"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/images"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/manifest"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/pve"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/runner"
)

// CommandBuilder renders the customization command for an image.
type CommandBuilder interface {
	Command(image string, ops []customize.Op) runner.Command
}

// PlannedStep is one action a run would take.
type PlannedStep struct {
	Step    Step
	Command string
}

// PlannedTemplate lists the actions a run would take for a template.
type PlannedTemplate struct {
	Template manifest.Template
	Steps    []PlannedStep
}

// Plan returns what Run would do for templates, without touching the
// network, the scratch directory or the host.
func Plan(templates []manifest.Template, storage *pve.Storage, builder CommandBuilder, opts Options) ([]PlannedTemplate, error) {
	p := &Provisioner{opts: opts}
	plans := make([]PlannedTemplate, 0, len(templates))

	for _, t := range templates {
		download := images.DownloadPath(opts.ScratchDir, t.Name)
		image := images.ImagePath(opts.ScratchDir, t.Name)
		plan := PlannedTemplate{Template: t}

		plan.Steps = append(plan.Steps, PlannedStep{Step: StepFetch, Command: fmt.Sprintf("download %s to %s", t.URL, download)})

		unpack := runner.Command{Name: "mv", Args: []string{download, image}}.String()
		if t.Unpack != "" {
			line, err := images.UnpackCommand(t.Unpack, download, image)
			if err != nil {
				return nil, fmt.Errorf("template %s: %w", t, err)
			}
			unpack = line
		}
		plan.Steps = append(plan.Steps, PlannedStep{Step: StepUnpack, Command: unpack})

		if ops := customize.Ops(t); len(ops) > 0 {
			step := StepCommand
			if len(t.Uploads) > 0 {
				step = StepUpload
			}
			plan.Steps = append(plan.Steps, PlannedStep{Step: step, Command: builder.Command(image, ops).String()})
		}

		for _, cmd := range pve.RegisterCommands(p.registerRequest(t, image, storage)) {
			plan.Steps = append(plan.Steps, PlannedStep{Step: StepRegister, Command: cmd.String()})
		}

		plans = append(plans, plan)
	}
	return plans, nil
}
