// Package provision turns manifest templates into Proxmox templates: it
// fetches each image, customizes it offline and registers the result.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/customize"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/images"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/manifest"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/pve"
)

// Fetcher downloads an image to local storage.
type Fetcher interface {
	Download(ctx context.Context, opts images.DownloadOptions) (int64, error)
}

// Unpacker turns a download into a disk image.
type Unpacker interface {
	Unpack(ctx context.Context, script, download, image string) error
}

// Host is the virtualization host templates are registered on.
type Host interface {
	Resources(ctx context.Context) ([]pve.Resource, error)
	Storage(ctx context.Context, name string) (*pve.Storage, error)
	Register(ctx context.Context, req pve.RegisterRequest) error
}

// Options configures a Provisioner.
type Options struct {
	ScratchDir    string
	Storage       string
	Memory        int    // Default when a template sets none
	Bridge        string // Default when a template sets none
	KeepOnFailure bool
	Prefetch      bool // Fetch the next image while the current one is customized
	// AllTemplates is the manifest the run's templates were selected from.
	// Duplicate vmids or names among them fail the run even when the
	// duplicates are not selected. Empty means the run's templates.
	AllTemplates []manifest.Template
	OnProgress    ProgressCallback
	Logger        *log.Logger
}

// Provisioner runs templates through fetch, customize and register.
type Provisioner struct {
	fetcher  Fetcher
	unpacker Unpacker
	engine   customize.Engine
	host     Host
	opts     Options
	logger   *log.Logger

	mu     sync.Mutex // Held for the whole run; guards the scratch directory
	emitMu sync.Mutex
}

// New creates a provisioner.
func New(fetcher Fetcher, unpacker Unpacker, engine customize.Engine, host Host, opts Options) *Provisioner {
	if opts.OnProgress == nil {
		opts.OnProgress = NoOpProgress
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Provisioner{
		fetcher:  fetcher,
		unpacker: unpacker,
		engine:   engine,
		host:     host,
		opts:     opts,
		logger:   logger,
	}
}

// Outcome is what happened to a single template.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result describes one template of a run.
type Result struct {
	VMID     int
	Name     string
	Outcome  Outcome
	Bytes    int64 // Size of the fetched image
	Duration time.Duration
	Step     Step // Failing step, only for OutcomeFailed
}

// Report summarizes a run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Results  []Result
	Err      error
}

// Count returns how many templates ended with the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
}

// fetched is an image ready for customization.
type fetched struct {
	tmpl  manifest.Template
	image string
	bytes int64
	took  time.Duration
	err   error
}

// Run provisions templates in order and stops at the first failure. The
// report is always returned; its Err matches the returned error.
func (p *Provisioner) Run(ctx context.Context, templates []manifest.Template) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Started: time.Now()}
	err := p.run(ctx, templates, report)
	report.Finished = time.Now()
	report.Err = err
	return report, err
}

func (p *Provisioner) run(ctx context.Context, templates []manifest.Template, report *Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, err := lockScratch(p.opts.ScratchDir)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.release(); rerr != nil {
			p.logger.Warn("failed to release scratch lock", "err", rerr)
		}
	}()

	pending, storage, err := p.preflight(ctx, templates, report)
	if err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			report.add(Result{VMID: stepErr.VMID, Name: stepErr.Name, Outcome: OutcomeFailed, Step: stepErr.Step})
		}
		return err
	}
	defer p.sweep(pending)

	if p.opts.Prefetch && len(pending) > 1 {
		return p.runPipelined(ctx, pending, storage, report)
	}
	return p.runSequential(ctx, pending, storage, report)
}

// preflight rejects runs that would fail at registration before any image is
// touched, and drops templates already present on the host.
func (p *Provisioner) preflight(ctx context.Context, templates []manifest.Template, report *Report) ([]manifest.Template, *pve.Storage, error) {
	p.emit(ProgressEvent{Stage: StagePreflight, Message: fmt.Sprintf("checking %d templates", len(templates))})

	scope := templates
	if len(p.opts.AllTemplates) > 0 {
		scope = p.opts.AllTemplates
	}
	if err := CheckUnique(scope); err != nil {
		return nil, nil, err
	}

	for _, t := range templates {
		if err := customize.CheckSources(customize.Ops(t)); err != nil {
			return nil, nil, &StepError{VMID: t.VMID, Name: t.Name, Step: StepUpload, Err: err}
		}
	}

	resources, err := p.host.Resources(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: preflight: %w", ErrRegister, err)
	}
	existing := make(map[int]pve.Resource, len(resources))
	for _, r := range resources {
		existing[r.VMID] = r
	}

	var pending []manifest.Template
	for _, t := range templates {
		r, ok := existing[t.VMID]
		switch {
		case !ok:
			pending = append(pending, t)
		case r.IsTemplate():
			p.logger.Info("template already exists, skipping", "vmid", t.VMID, "name", r.Name)
			p.emit(ProgressEvent{VMID: t.VMID, Name: t.Name, Stage: StageSkipped,
				Message: fmt.Sprintf("vmid %d is already the template %q", t.VMID, r.Name)})
			report.add(Result{VMID: t.VMID, Name: t.Name, Outcome: OutcomeSkipped})
		default:
			return nil, nil, &StepError{VMID: t.VMID, Name: t.Name, Step: StepRegister,
				Err: fmt.Errorf("vmid %d is already used by %s %q on node %s", t.VMID, r.Type, r.Name, r.Node)}
		}
	}

	if len(pending) == 0 {
		return nil, nil, nil
	}

	storage, err := p.host.Storage(ctx, p.opts.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: preflight: %w", ErrRegister, err)
	}
	return pending, storage, nil
}

// CheckUnique fails with a register StepError when two templates share a
// vmid or a name.
func CheckUnique(templates []manifest.Template) error {
	byID := make(map[int]manifest.Template)
	byName := make(map[string]manifest.Template)
	for _, t := range templates {
		if other, ok := byID[t.VMID]; ok {
			return &StepError{VMID: t.VMID, Name: t.Name, Step: StepRegister,
				Err: fmt.Errorf("vmid %d is also used by template %q", t.VMID, other.Name)}
		}
		if other, ok := byName[t.Name]; ok {
			return &StepError{VMID: t.VMID, Name: t.Name, Step: StepRegister,
				Err: fmt.Errorf("name %q is also used by vmid %d", t.Name, other.VMID)}
		}
		byID[t.VMID] = t
		byName[t.Name] = t
	}
	return nil
}

func (p *Provisioner) runSequential(ctx context.Context, templates []manifest.Template, storage *pve.Storage, report *Report) error {
	for _, t := range templates {
		f := p.fetch(ctx, t)
		if err := p.finish(ctx, f, storage, report); err != nil {
			return err
		}
	}
	return nil
}

// runPipelined fetches the next image while the current one is customized
// and registered. Only the consumer writes to the report.
func (p *Provisioner) runPipelined(ctx context.Context, templates []manifest.Template, storage *pve.Storage, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	ready := make(chan fetched)

	g.Go(func() error {
		defer close(ready)
		for _, t := range templates {
			f := p.fetch(gctx, t)
			select {
			case ready <- f:
			case <-gctx.Done():
				return nil
			}
			if f.err != nil {
				return nil
			}
		}
		return nil
	})

	g.Go(func() error {
		for f := range ready {
			if err := p.finish(gctx, f, storage, report); err != nil {
				return err
			}
		}
		return ctx.Err()
	})

	return g.Wait()
}

// fetch downloads and unpacks the image of t into the scratch directory.
func (p *Provisioner) fetch(ctx context.Context, t manifest.Template) fetched {
	start := time.Now()
	download := images.DownloadPath(p.opts.ScratchDir, t.Name)
	image := images.ImagePath(p.opts.ScratchDir, t.Name)
	f := fetched{tmpl: t, image: image}

	p.emit(ProgressEvent{VMID: t.VMID, Name: t.Name, Stage: StageFetch, Message: "downloading " + t.URL, Total: -1})
	n, err := p.fetcher.Download(ctx, images.DownloadOptions{
		URL:      t.URL,
		DestPath: download,
		SHA256:   t.SHA256,
		OnProgress: func(downloaded, total int64) {
			p.emit(ProgressEvent{VMID: t.VMID, Name: t.Name, Stage: StageFetch, Downloaded: downloaded, Total: total})
		},
	})
	if err != nil {
		f.err = &StepError{VMID: t.VMID, Name: t.Name, Step: StepFetch, Err: err}
		return f
	}
	f.bytes = n
	p.logger.Debug("downloaded image", "vmid", t.VMID, "bytes", n)

	if t.Unpack != "" {
		p.emit(ProgressEvent{VMID: t.VMID, Name: t.Name, Stage: StageUnpack, Message: "unpacking", Detail: t.Unpack})
	}
	if err := p.unpacker.Unpack(ctx, t.Unpack, download, image); err != nil {
		f.err = &StepError{VMID: t.VMID, Name: t.Name, Step: StepUnpack, Err: err}
		return f
	}

	f.took = time.Since(start)
	return f
}

// finish customizes and registers a fetched image, recording the outcome.
func (p *Provisioner) finish(ctx context.Context, f fetched, storage *pve.Storage, report *Report) error {
	t := f.tmpl
	start := time.Now().Add(-f.took)

	err := f.err
	if err == nil {
		err = p.customize(ctx, t, f.image)
	}
	if err == nil {
		err = p.register(ctx, t, f.image, storage)
	}
	p.cleanup(t)

	res := Result{VMID: t.VMID, Name: t.Name, Bytes: f.bytes, Duration: time.Since(start)}
	if err != nil {
		res.Outcome = OutcomeFailed
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			res.Step = stepErr.Step
		}
		report.add(res)
		p.emit(ProgressEvent{VMID: t.VMID, Name: t.Name, Stage: StageError, Message: err.Error(), IsError: true})
		return err
	}

	res.Outcome = OutcomeCreated
	report.add(res)
	p.logger.Info("template created", "vmid", t.VMID, "name", t.Name, "took", res.Duration.Round(time.Second))
	p.emit(ProgressEvent{VMID: t.VMID, Name: t.Name, Stage: StageComplete, Message: "template created"})
	return nil
}

func (p *Provisioner) customize(ctx context.Context, t manifest.Template, image string) error {
	ops := customize.Ops(t)
	if len(ops) == 0 {
		return nil
	}

	p.emit(ProgressEvent{VMID: t.VMID, Name: t.Name, Stage: StageCustomize,
		Message: fmt.Sprintf("applying %d uploads and %d commands", len(t.Uploads), len(t.Commands))})

	err := p.engine.Customize(ctx, image, ops, func(op customize.Op) {
		p.emit(ProgressEvent{VMID: t.VMID, Name: t.Name, Stage: StageCustomize, Message: op.Kind.String(), Detail: op.String()})
	})
	if err == nil {
		return nil
	}

	step := StepCommand
	var opErr *customize.OpError
	if errors.As(err, &opErr) && opErr.Op.Kind == customize.OpUpload {
		step = StepUpload
	}
	return &StepError{VMID: t.VMID, Name: t.Name, Step: step, Err: err}
}

func (p *Provisioner) register(ctx context.Context, t manifest.Template, image string, storage *pve.Storage) error {
	p.emit(ProgressEvent{VMID: t.VMID, Name: t.Name, Stage: StageRegister, Message: "registering on " + storage.Name})

	if err := p.host.Register(ctx, p.registerRequest(t, image, storage)); err != nil {
		return &StepError{VMID: t.VMID, Name: t.Name, Step: StepRegister, Err: err}
	}
	return nil
}

func (p *Provisioner) registerRequest(t manifest.Template, image string, storage *pve.Storage) pve.RegisterRequest {
	req := pve.RegisterRequest{
		VMID:          t.VMID,
		Name:          t.Name,
		Image:         image,
		Storage:       storage,
		Memory:        t.Memory,
		Bridge:        t.Bridge,
		CloudInit:     t.CloudInit,
		KeepOnFailure: p.opts.KeepOnFailure,
	}
	if req.Memory == 0 {
		req.Memory = p.opts.Memory
	}
	if req.Bridge == "" {
		req.Bridge = p.opts.Bridge
	}
	return req
}

// cleanup removes the scratch files of t.
func (p *Provisioner) cleanup(t manifest.Template) {
	for _, path := range []string{
		images.DownloadPath(p.opts.ScratchDir, t.Name),
		images.ImagePath(p.opts.ScratchDir, t.Name),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("failed to remove scratch file", "path", path, "err", err)
		}
	}
}

// sweep removes images that were prefetched but never consumed.
func (p *Provisioner) sweep(templates []manifest.Template) {
	for _, t := range templates {
		p.cleanup(t)
	}
}

func (p *Provisioner) emit(e ProgressEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.opts.OnProgress(e)
}
