package metrics

import (
	"github.com/grafana/pyroscope-go"

	"github.com/a6b0x/chain-pipe/internal/config"
)

// InitPProf starts continuous profiling when enabled; returns nil profiler
// otherwise.
func InitPProf(instanceID string, cfg *config.PyroscopeConfig) (*pyroscope.Profiler, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	tags := map[string]string{
		"instance": instanceID,
	}
	for k, v := range cfg.Tags {
		tags[k] = v
	}

	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName,
		ServerAddress:   cfg.ServerAddr,
		AuthToken:       cfg.AuthToken,
		Logger:          pyroscope.StandardLogger,
		Tags:            tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
}
