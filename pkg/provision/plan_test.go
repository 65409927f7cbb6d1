package provision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/customize"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/manifest"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/pve"
)

func TestPlan(t *testing.T) {
	debian := manifest.Template{
		VMID:   9001,
		Name:   "debian-12",
		URL:    "https://cloud.debian.org/debian-12.tar.xz",
		Unpack: "tar -xOJf {dl} disk.raw > {img}",
		Uploads: []manifest.Upload{
			{Local: "/srv/pvetmpl/files/empty", Remote: "/etc/machine-id"},
		},
		Commands:  []string{"passwd -d root"},
		CloudInit: true,
	}
	bare := manifest.Template{VMID: 9002, Name: "bare", URL: "s3://images/bare.qcow2"}

	storage := &pve.Storage{Name: "local-lvm", Type: "lvmthin", Kind: pve.StorageVolume}
	opts := Options{ScratchDir: "/var/tmp/pvetmpl", Memory: 1024, Bridge: "vmbr0"}

	plans, err := Plan([]manifest.Template{debian, bare}, storage, customize.NewVirtCustomize(nil), opts)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	var got []string
	for _, s := range plans[0].Steps {
		got = append(got, string(s.Step)+": "+s.Command)
	}
	assert.Equal(t, []string{
		"fetch: download https://cloud.debian.org/debian-12.tar.xz to /var/tmp/pvetmpl/debian-12.img.download",
		"unpack: tar -xOJf /var/tmp/pvetmpl/debian-12.img.download disk.raw > /var/tmp/pvetmpl/debian-12.img",
		"upload: LIBGUESTFS_BACKEND=direct virt-customize -a /var/tmp/pvetmpl/debian-12.img --upload /srv/pvetmpl/files/empty:/etc/machine-id --run-command 'passwd -d root'",
		"register: qm create 9001 --name debian-12 --memory 1024 --net0 virtio,bridge=vmbr0",
		"register: qm importdisk 9001 /var/tmp/pvetmpl/debian-12.img local-lvm",
		"register: qm set 9001 --scsihw virtio-scsi-pci --scsi0 local-lvm:vm-9001-disk-0",
		"register: qm set 9001 --boot c --bootdisk scsi0",
		"register: qm set 9001 --serial0 socket",
		"register: qm set 9001 --ide2 local-lvm:cloudinit",
		"register: qm set 9001 --ciuser root",
		"register: qm template 9001",
	}, got)

	bareSteps := plans[1].Steps
	assert.Equal(t, StepUnpack, bareSteps[1].Step)
	assert.Equal(t, "mv /var/tmp/pvetmpl/bare.img.download /var/tmp/pvetmpl/bare.img", bareSteps[1].Command)
	assert.Equal(t, StepRegister, bareSteps[2].Step, "no customize step without uploads or commands")
}

func TestStepError(t *testing.T) {
	cause := errors.New("HTTP 503")
	err := &StepError{VMID: 9000, Name: "ubuntu-noble", Step: StepFetch, Err: cause}

	assert.Equal(t, "template 9000 (ubuntu-noble): fetch failed: HTTP 503", err.Error())
	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRegister)

	unpack := &StepError{VMID: 9000, Name: "ubuntu-noble", Step: StepUnpack, Err: cause}
	assert.ErrorIs(t, unpack, ErrFetch)
}

func TestStep_Kind(t *testing.T) {
	assert.Equal(t, ErrFetch, StepFetch.Kind())
	assert.Equal(t, ErrFetch, StepUnpack.Kind())
	assert.Equal(t, ErrUpload, StepUpload.Kind())
	assert.Equal(t, ErrCommand, StepCommand.Kind())
	assert.Equal(t, ErrRegister, StepRegister.Kind())
	assert.Nil(t, Step("other").Kind())
}

func TestProgressTracker(t *testing.T) {
	tracker := NewProgressTracker()
	cb := tracker.Callback()

	assert.Nil(t, tracker.LastEvent())

	cb(ProgressEvent{Stage: StageFetch, Total: -1})
	cb(ProgressEvent{Stage: StageFetch, Downloaded: 10, Total: 20})
	cb(ProgressEvent{Stage: StageError, Message: "boom", IsError: true})

	assert.Len(t, tracker.Events(), 3)
	assert.Equal(t, []Stage{StageFetch, StageError}, tracker.Stages())
	assert.True(t, tracker.HasErrors())
	assert.Equal(t, "boom", tracker.LastEvent().Message)
	assert.Equal(t, "Downloading", StageFetch.DisplayName())
}
