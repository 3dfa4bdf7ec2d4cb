package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range pending {
		if err := reg.Register(c); err != nil {
			t.Fatalf("duplicate or invalid collector: %v", err)
		}
	}
	MustRegister()
	MustRegister()
}

func TestHelpersNormalizeLabels(t *testing.T) {
	IncSessionTransition(" Ended ")
	if got := testutil.ToFloat64(sessionTransitionsTotal.WithLabelValues("ended")); got < 1 {
		t.Fatalf("session_transitions_total{to=ended} = %v", got)
	}
	AddRetentionPurged("SESSION", 3)
	if got := testutil.ToFloat64(retentionPurgedTotal.WithLabelValues("session")); got < 3 {
		t.Fatalf("retention_purged_total{kind=session} = %v", got)
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("", "abc123")
	if got := testutil.ToFloat64(buildInfo.WithLabelValues("dev", "abc123")); got != 1 {
		t.Fatalf("build_info{version=dev} = %v", got)
	}
}
