// Package config loads process configuration into a plain value, per
// Design Notes §9: "model it as a value threaded through construction, not
// a singleton." Every coordinator and runner process constructs one Config
// at startup and passes it explicitly to whatever needs it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-tunable knob a coordinator or runner
// process needs, mirroring the environment variables the original
// implementation reads (steadyum-api-types' env lookups).
type Config struct {
	// TransportAddr is the address the gRPC transport listens on / dials,
	// substituting for the original ZENOH_ROUTER endpoint.
	TransportAddr string

	// PartitionnerAddr and PartitionnerPort locate the Master coordinator
	// that a Child registers with.
	PartitionnerAddr string
	PartitionnerPort int

	// RunnerExe is the path to the runner binary a Child spawns as its
	// Region Worker process.
	RunnerExe string

	// PrivateNetInterface names the network interface whose address is
	// advertised to peers, for hosts with multiple interfaces.
	PrivateNetInterface string

	// StepInterval is the target wall-clock period between lock-step ticks.
	StepInterval time.Duration

	// RegionWidth is the edge length W of the region grid (spec.md §3).
	RegionWidth int64

	// SendbackDelayLimit caps the per-body sendback-delay counter (spec.md
	// §4.4 step 7).
	SendbackDelayLimit uint32

	// HTTPAddr is the address the control-plane HTTP server binds to
	// (spec.md §6.1).
	HTTPAddr string
}

// Defaults returns the configuration baseline before environment overrides,
// matching the original implementation's fallback constants.
func Defaults() Config {
	return Config{
		TransportAddr:       "127.0.0.1:7447",
		PartitionnerAddr:    "127.0.0.1",
		PartitionnerPort:    8000,
		RunnerExe:           "runner",
		PrivateNetInterface: "",
		StepInterval:        20 * time.Millisecond,
		RegionWidth:         100,
		SendbackDelayLimit:  50,
		HTTPAddr:            "127.0.0.1:8000",
	}
}

// Load reads configuration from the environment (PARTITIONNER_ADDR,
// PARTITIONNER_PORT, RUNNER_EXE, PRIV_NET_INT, ZENOH_ROUTER, STEP_INTERVAL_MS,
// REGION_WIDTH, SENDBACK_DELAY_LIMIT, HTTP_ADDR), falling back to Defaults for
// anything unset. It never mutates global state; callers thread the returned
// value through their own constructors.
//
// REDIS_ADDR is deliberately not among these: the original used it to
// locate a Redis pub/sub broker, a role TransportAddr's gRPC transport
// (ZENOH_ROUTER) already fills end to end here, so there is no consumer
// left for a second broker address to configure.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := Defaults()

	if s := v.GetString("ZENOH_ROUTER"); s != "" {
		cfg.TransportAddr = s
	}
	if s := v.GetString("PARTITIONNER_ADDR"); s != "" {
		cfg.PartitionnerAddr = s
	}
	if v.IsSet("PARTITIONNER_PORT") {
		cfg.PartitionnerPort = v.GetInt("PARTITIONNER_PORT")
	}
	if s := v.GetString("RUNNER_EXE"); s != "" {
		cfg.RunnerExe = s
	}
	if s := v.GetString("PRIV_NET_INT"); s != "" {
		cfg.PrivateNetInterface = s
	}
	if v.IsSet("STEP_INTERVAL_MS") {
		cfg.StepInterval = time.Duration(v.GetInt64("STEP_INTERVAL_MS")) * time.Millisecond
	}
	if v.IsSet("REGION_WIDTH") {
		cfg.RegionWidth = v.GetInt64("REGION_WIDTH")
	}
	if v.IsSet("SENDBACK_DELAY_LIMIT") {
		cfg.SendbackDelayLimit = uint32(v.GetUint32("SENDBACK_DELAY_LIMIT"))
	}
	if s := v.GetString("HTTP_ADDR"); s != "" {
		cfg.HTTPAddr = s
	}

	if cfg.RegionWidth <= 0 {
		return Config{}, fmt.Errorf("config: REGION_WIDTH must be positive, got %d", cfg.RegionWidth)
	}
	return cfg, nil
}
