package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/provision"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes provisioning progress as one line per stage. On a terminal
// downloads of known size are drawn as a progress bar on a single line.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	tty     bool
	bar     progress.Model
	inBar   bool
	lastPct int
}

// NewPrinter creates a printer for w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:   w,
		tty: IsTerminal(w),
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		lastPct: -1,
	}
}

// Callback returns the printer as a progress callback.
func (p *Printer) Callback() provision.ProgressCallback {
	return p.Handle
}

// Handle prints one event.
func (p *Printer) Handle(e provision.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.Stage == provision.StageFetch && e.Downloaded > 0 {
		p.drawBar(e)
		return
	}

	p.endBar()
	icon := DimStyle.Render(IconPending)
	switch {
	case e.IsError:
		icon = ErrorStyle.Render(IconFail)
	case e.Stage == provision.StageComplete:
		icon = SuccessStyle.Render(IconOK)
	case e.Stage == provision.StageSkipped:
		icon = DimStyle.Render(IconSkip)
	}

	line := icon + " "
	if e.VMID != 0 {
		line += DimStyle.Render(fmt.Sprintf("[%d %s]", e.VMID, e.Name)) + " "
	}
	line += e.Stage.DisplayName() + ": " + e.Message
	if e.Detail != "" {
		line += " " + DimStyle.Render(e.Detail)
	}
	fmt.Fprintln(p.w, line)
}

func (p *Printer) drawBar(e provision.ProgressEvent) {
	if !p.tty || e.Total <= 0 {
		return
	}

	pct := int(e.Downloaded * 100 / e.Total)
	if pct > 100 {
		pct = 100
	}
	if pct == p.lastPct {
		return
	}
	p.lastPct = pct
	p.inBar = true

	fmt.Fprintf(p.w, "\r  %s %3d%% %s / %s", p.bar.ViewAs(float64(pct)/100.0), pct,
		humanize.IBytes(uint64(e.Downloaded)), humanize.IBytes(uint64(e.Total)))
}

func (p *Printer) endBar() {
	if p.inBar {
		fmt.Fprintln(p.w)
		p.inBar = false
	}
	p.lastPct = -1
}
