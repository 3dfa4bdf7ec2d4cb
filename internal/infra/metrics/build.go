package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "mindspace_build_info",
		Help: "Always 1; labels identify the running build.",
	},
	[]string{"version", "commit"},
)

// SetBuildInfo is called once from main with the linker-injected values.
func SetBuildInfo(version, commit string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version, commit).Set(1)
}
