package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanw/svelte-prebundle/internal/stats"
)

func TestObserverCountsFiles(t *testing.T) {
	m := NewMetrics()
	client := m.Observer("client")
	ssr := m.Observer("ssr")

	client.FileCompiled("a.svelte", 10*time.Millisecond)
	client.FileCompiled("b.svelte", 20*time.Millisecond)
	client.FileFailed("c.svelte", errors.New("boom"))
	ssr.FileCompiled("a.svelte", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("client", "compiled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("client", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("ssr", "compiled")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.compileDuration))
}

func TestRecordPassReplacesPackages(t *testing.T) {
	m := NewMetrics()
	o := m.Observer("client")

	o.PassFinished([]stats.Group{{Name: "a", Files: 3}, {Name: "b", Files: 1}})
	o.PassFinished([]stats.Group{{Name: "c", Files: 2}})

	assert.Equal(t, 1, testutil.CollectAndCount(m.packageFiles))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.packageFiles.WithLabelValues("client", "c")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.passesTotal.WithLabelValues("client")))
}

func TestWriteFile(t *testing.T) {
	m := NewMetrics()
	m.Observer("ssr").FileCompiled("a.svelte", time.Millisecond)

	path := filepath.Join(t.TempDir(), "prebundle.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `svelte_prebundle_files_total{mode="ssr",outcome="compiled"} 1`))
}
