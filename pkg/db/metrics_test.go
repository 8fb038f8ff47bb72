package db

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func collectDescs(c prometheus.Collector) []*prometheus.Desc {
	ch := make(chan *prometheus.Desc, 10)
	go func() {
		c.Describe(ch)
		close(ch)
	}()
	var descs []*prometheus.Desc
	for d := range ch {
		descs = append(descs, d)
	}
	return descs
}

func TestPoolStatsCollector_Describe(t *testing.T) {
	descs := collectDescs(NewPoolStatsCollector(nil, "voxreel", "snapshot"))
	if len(descs) != 4 {
		t.Fatalf("expected 4 descriptors, got %d", len(descs))
	}

	expectedNames := []string{
		"voxreel_db_pool_total_conns",
		"voxreel_db_pool_idle_conns",
		"voxreel_db_pool_acquired_conns",
		"voxreel_db_pool_max_conns",
	}
	for i, desc := range descs {
		s := desc.String()
		if !strings.Contains(s, expectedNames[i]) {
			t.Errorf("expected descriptor to contain %s, got %s", expectedNames[i], s)
		}
		if !strings.Contains(s, `store="snapshot"`) {
			t.Errorf("expected store label in descriptor, got %s", s)
		}
	}
}

func TestPoolStatsCollector_Collect_NilPool(t *testing.T) {
	collector := NewPoolStatsCollector(nil, "voxreel", "snapshot")
	if n := testutil.CollectAndCount(collector); n != 0 {
		t.Errorf("expected 0 metrics for nil pool, got %d", n)
	}
}

func TestRegisterPoolStats(t *testing.T) {
	reg := prometheus.NewRegistry()

	collector, err := RegisterPoolStats(reg, nil, "voxreel", "snapshot")
	if err != nil {
		t.Fatalf("RegisterPoolStats failed: %v", err)
	}
	if collector == nil {
		t.Fatal("expected collector to be returned")
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	if _, err := RegisterPoolStats(reg, nil, "voxreel", "snapshot"); err != nil {
		t.Fatalf("second registration should not error: %v", err)
	}
}

func TestPoolStatsCollector_Lint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewPoolStatsCollector(nil, "voxreel", "snapshot"))
	if err != nil {
		t.Fatalf("CollectAndLint failed: %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint problem: %s", p.Text)
	}
}
