package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fixedpool/pool"
)

func gather(t *testing.T, c prometheus.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	mfs, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func Test_Collector_ExportsPoolStats(t *testing.T) {
	p, err := pool.New(make([]byte, 1<<20))
	require.NoError(t, err)
	defer p.Exit()

	ptr, _, err := p.Alloc(16)
	require.NoError(t, err)
	_, _, err = p.Alloc(5000)
	require.NoError(t, err)
	require.NoError(t, p.Free(ptr))

	c := NewCollector("test", prometheus.Labels{"host": "a"}, map[string]Source{"main": p})
	mfs := gather(t, c)

	used := mfs["test_pool_used_bytes"]
	require.NotNil(t, used)
	require.Len(t, used.GetMetric(), 1)
	m := used.GetMetric()[0]
	assert.Equal(t, float64(5000), m.GetGauge().GetValue())
	assert.Equal(t, "main", labelValue(m, "pool"))
	assert.Equal(t, "a", labelValue(m, "host"))

	allocs := mfs["test_pool_allocs_total"]
	require.NotNil(t, allocs)
	byKind := map[string]float64{}
	for _, m := range allocs.GetMetric() {
		byKind[labelValue(m, "kind")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"regular": 1, "nonregular": 1}, byKind)

	blocks := mfs["test_pool_class_blocks"]
	require.NotNil(t, blocks)
	assert.Len(t, blocks.GetMetric(), pool.NumClasses)
	for _, m := range blocks.GetMetric() {
		if labelValue(m, "size") == "16" {
			assert.Equal(t, float64(64), m.GetGauge().GetValue())
		}
	}
}

func Test_Collector_MultiplePools(t *testing.T) {
	a, err := pool.New(make([]byte, 64<<10))
	require.NoError(t, err)
	defer a.Exit()
	b, err := pool.New(make([]byte, 64<<10))
	require.NoError(t, err)
	defer b.Exit()

	c := NewCollector("", nil, map[string]Source{"a": a, "b": b})
	mfs := gather(t, c)

	frees := mfs["pool_frees_total"]
	require.NotNil(t, frees)
	assert.Len(t, frees.GetMetric(), 2)
}
