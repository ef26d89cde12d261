package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Reason
	}{
		{nil, ""},
		{fmt.Errorf("wrap: %w", ErrPermissionDenied), ReasonPermissionDenied},
		{os.ErrPermission, ReasonPermissionDenied},
		{fmt.Errorf("wrap: %w", ErrNoDevice), ReasonNoDevice},
		{exec.ErrNotFound, ReasonNoDevice},
		{errors.New("boom"), ReasonUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}

func TestFileDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFdata"), 0o644))

	d := &FileDevice{Path: path}
	require.Equal(t, "file:answer.wav", d.Name())

	s, err := d.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	b, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, []byte("RIFFdata"), b)
}

func TestFileDeviceMissing(t *testing.T) {
	d := &FileDevice{Path: filepath.Join(t.TempDir(), "nope.wav")}
	_, err := d.Open(context.Background())
	require.ErrorIs(t, err, ErrNoDevice)
	require.Equal(t, ReasonNoDevice, Classify(err))
}

func TestCommandDeviceMissingBinary(t *testing.T) {
	d := NewCommandDevice([]string{"littlemic-no-such-recorder"}, zerolog.Nop())
	_, err := d.Open(context.Background())
	require.ErrorIs(t, err, ErrNoDevice)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandDeviceStreamsStdout(t *testing.T) {
	requireShell(t)
	d := NewCommandDevice([]string{"sh", "-c", "printf hello"}, zerolog.Nop())

	s, err := d.Open(context.Background())
	require.NoError(t, err)
	b, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))
	require.NoError(t, s.Close())
}

func TestCommandDeviceCloseInterrupts(t *testing.T) {
	requireShell(t)
	d := NewCommandDevice([]string{"sh", "-c", "printf start; exec sleep 30"}, zerolog.Nop())

	s, err := d.Open(context.Background())
	require.NoError(t, err)
	head := make([]byte, 5)
	_, err = io.ReadFull(s, head)
	require.NoError(t, err)
	require.Equal(t, "start", string(head))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	rest, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Empty(t, rest)
}

func TestCommandDeviceClassifiesStderr(t *testing.T) {
	requireShell(t)
	d := NewCommandDevice([]string{"sh", "-c", "echo 'Permission denied' >&2; exit 1"}, zerolog.Nop())

	s, err := d.Open(context.Background())
	require.NoError(t, err)
	_, _ = io.ReadAll(s)
	err = s.Close()
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDefaultCommandName(t *testing.T) {
	d := NewCommandDevice(nil, zerolog.Nop())
	require.Equal(t, "pw-record", d.Name())
}
