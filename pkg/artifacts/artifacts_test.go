package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/digest"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
	"github.com/rsalesc/robox.io-sub000/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCacher(t *testing.T) *cacher.FileCacher {
	t.Helper()
	backing, err := store.NewFilesystemStore(t.TempDir(), nil)
	require.NoError(t, err)
	c, err := cacher.New(t.TempDir(), backing)
	require.NoError(t, err)
	return c
}

func TestValidateProducedBeforeConsumedRejectsDanglingHolder(t *testing.T) {
	h := digest.NewHolder()
	p := Plan{
		Inputs: []Input{
			{DestInSandbox: "exe", Source: InputSource{Holder: h}},
		},
	}
	assert.Error(t, p.ValidateProducedBeforeConsumed())
}

func TestValidateProducedBeforeConsumedAcceptsProducedHolder(t *testing.T) {
	h := digest.NewHolder()
	p := Plan{
		Outputs: []Output{
			{SrcInSandbox: "exe", Sink: OutputSink{Holder: h}},
		},
		Inputs: []Input{
			{DestInSandbox: "exe", Source: InputSource{Holder: h}},
		},
	}
	assert.NoError(t, p.ValidateProducedBeforeConsumed())
}

func TestStageInputsFromSrcPath(t *testing.T) {
	sb, err := sandbox.NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)
	defer sb.Cleanup(true)

	src := filepath.Join(t.TempDir(), "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	err = StageInputs(sb, nil, []Input{
		{DestInSandbox: "dst.txt", Source: InputSource{SrcPath: src}},
	}, nil)
	require.NoError(t, err)

	got, err := sb.GetFileToString("dst.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
}

func TestStageOutputsRequiredMissingFails(t *testing.T) {
	sb, err := sandbox.NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)
	defer sb.Cleanup(true)

	err = StageOutputs(sb, nil, []Output{
		{SrcInSandbox: "missing.txt"},
	}, nil)
	assert.Error(t, err)
}

func TestStageOutputsOptionalMissingSucceeds(t *testing.T) {
	sb, err := sandbox.NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)
	defer sb.Cleanup(true)

	err = StageOutputs(sb, nil, []Output{
		{SrcInSandbox: "missing.txt", Optional: true},
	}, nil)
	assert.NoError(t, err)
}

func TestStageOutputsCopiesToDestPath(t *testing.T) {
	sb, err := sandbox.NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)
	defer sb.Cleanup(true)

	require.NoError(t, sb.CreateFileFromString("out.txt", "result", false))

	dest := filepath.Join(t.TempDir(), "out.txt")
	err = StageOutputs(sb, nil, []Output{
		{SrcInSandbox: "out.txt", Sink: OutputSink{DestPath: dest}},
	}, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "result", string(got))
}

func TestStageOutputsHashRoutesThroughCacherAndHolder(t *testing.T) {
	sb, err := sandbox.NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)
	defer sb.Cleanup(true)

	require.NoError(t, sb.CreateFileFromString("out.bin", "binary-ish", true))

	c := newTestCacher(t)
	h := digest.NewHolder()
	err = StageOutputs(sb, c, []Output{
		{SrcInSandbox: "out.bin", Sink: OutputSink{Holder: h}, Hash: true, Executable: true},
	}, nil)
	require.NoError(t, err)
	assert.False(t, h.Value.Empty())
}
