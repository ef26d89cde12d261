package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestIncUploadDefaultsUnknownLabel(t *testing.T) {
	before := counterValue(t, UploadsTotal.WithLabelValues("unknown"))
	IncUpload("")
	require.Equal(t, before+1, counterValue(t, UploadsTotal.WithLabelValues("unknown")))
}

func TestAddReconcileDeletedIgnoresZero(t *testing.T) {
	before := counterValue(t, ReconcileDeletedTotal.WithLabelValues("orphan"))
	AddReconcileDeleted("orphan", 0)
	AddReconcileDeleted("orphan", 2)
	require.Equal(t, before+2, counterValue(t, ReconcileDeletedTotal.WithLabelValues("orphan")))
}

func TestWriteTextfile(t *testing.T) {
	IncCapture("saved")
	path := filepath.Join(t.TempDir(), "littlemic.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "littlemic_captures_total")

	require.NoError(t, WriteTextfile(""))
}
