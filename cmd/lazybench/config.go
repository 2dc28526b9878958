package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

var (
	errConfigRead    = errors.New("cannot read config file")
	errConfigInvalid = errors.New("invalid config file")
	errBadValue      = errors.New("invalid value")
)

// Duration is a time.Duration that reads "250ms"-style strings from JSON.
type Duration time.Duration

// UnmarshalJSON accepts a Go duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Config is the benchmark configuration. A HuJSON file (comments and
// trailing commas allowed) is merged over the defaults; flags given on the
// command line win over both.
type Config struct {
	Capacity int    `json:"capacity"`
	Shards   int    `json:"shards"`
	Policy   string `json:"policy"`
	KeyLocks int    `json:"key_locks"`

	Workers  int      `json:"workers"`
	Duration Duration `json:"duration"`
	Keys     int      `json:"keys"`
	ZipfS    float64  `json:"zipf_s"`
	ZipfV    float64  `json:"zipf_v"`
	Seed     int64    `json:"seed"`

	FactoryDelay Duration `json:"factory_delay"`
	TTL          Duration `json:"ttl"`
	Sliding      bool     `json:"sliding"`
	Immediate    bool     `json:"immediate"`
	ErrorPct     int      `json:"error_pct"`
	AsyncPct     int      `json:"async_pct"`

	PprofAddr   string `json:"pprof"`
	MetricsAddr string `json:"http"`
}

// DefaultConfig returns the defaults used when neither a file nor a flag
// sets a field.
func DefaultConfig() Config {
	return Config{
		Capacity:     100_000,
		Policy:       "lru",
		Workers:      2 * runtime.GOMAXPROCS(0),
		Duration:     Duration(10 * time.Second),
		Keys:         1_000_000,
		ZipfS:        1.1,
		ZipfV:        1.0,
		Seed:         time.Now().UnixNano(),
		FactoryDelay: Duration(time.Millisecond),
		TTL:          Duration(30 * time.Second),
		AsyncPct:     50,
		MetricsAddr:  ":8080",
	}
}

// loadConfigFile merges the HuJSON file at path over cfg. Fields absent
// from the file keep their value.
func loadConfigFile(path string, cfg Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigRead, path, err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: invalid JSONC: %w", errConfigInvalid, path, err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return cfg, nil
}

// parseConfig builds the configuration from args: defaults, then the file
// named by --config, then explicitly set flags.
func parseConfig(args []string) (Config, error) {
	def := DefaultConfig()
	fs := pflag.NewFlagSet("lazybench", pflag.ContinueOnError)

	configPath := fs.String("config", "", "HuJSON config file merged over defaults")
	var flags Config
	fs.IntVar(&flags.Capacity, "cap", def.Capacity, "store capacity in entries (0 = unbounded)")
	fs.IntVar(&flags.Shards, "shards", def.Shards, "number of store shards (0 = auto)")
	fs.StringVar(&flags.Policy, "policy", def.Policy, "eviction policy: lru | 2q")
	fs.IntVar(&flags.KeyLocks, "key-locks", def.KeyLocks, "key-lock table size (0 = auto)")
	fs.IntVarP(&flags.Workers, "workers", "w", def.Workers, "number of worker goroutines")
	fs.DurationVarP((*time.Duration)(&flags.Duration), "duration", "d", time.Duration(def.Duration), "benchmark duration")
	fs.IntVar(&flags.Keys, "keys", def.Keys, "keyspace size")
	fs.Float64Var(&flags.ZipfS, "zipf-s", def.ZipfS, "Zipf s > 1 (skew)")
	fs.Float64Var(&flags.ZipfV, "zipf-v", def.ZipfV, "Zipf v >= 1")
	fs.Int64Var(&flags.Seed, "seed", def.Seed, "random seed")
	fs.DurationVar((*time.Duration)(&flags.FactoryDelay), "factory-delay", time.Duration(def.FactoryDelay), "simulated factory latency")
	fs.DurationVar((*time.Duration)(&flags.TTL), "ttl", time.Duration(def.TTL), "entry expiration (0 = cache default)")
	fs.BoolVar(&flags.Sliding, "sliding", def.Sliding, "use sliding instead of absolute expiration")
	fs.BoolVar(&flags.Immediate, "immediate", def.Immediate, "evict on a timer instead of lazily")
	fs.IntVar(&flags.ErrorPct, "errors", def.ErrorPct, "percentage of factory runs that fail [0..100]")
	fs.IntVar(&flags.AsyncPct, "async", def.AsyncPct, "percentage of calls using GetOrAddAsync [0..100]")
	fs.StringVar(&flags.PprofAddr, "pprof", def.PprofAddr, "serve pprof at addr (e.g. :6060); empty = disabled")
	fs.StringVar(&flags.MetricsAddr, "http", def.MetricsAddr, "serve Prometheus metrics at addr; empty = disabled")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := def
	if *configPath != "" {
		var err error
		if cfg, err = loadConfigFile(*configPath, cfg); err != nil {
			return Config{}, err
		}
	}

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("cap", func() { cfg.Capacity = flags.Capacity })
	set("shards", func() { cfg.Shards = flags.Shards })
	set("policy", func() { cfg.Policy = flags.Policy })
	set("key-locks", func() { cfg.KeyLocks = flags.KeyLocks })
	set("workers", func() { cfg.Workers = flags.Workers })
	set("duration", func() { cfg.Duration = flags.Duration })
	set("keys", func() { cfg.Keys = flags.Keys })
	set("zipf-s", func() { cfg.ZipfS = flags.ZipfS })
	set("zipf-v", func() { cfg.ZipfV = flags.ZipfV })
	set("seed", func() { cfg.Seed = flags.Seed })
	set("factory-delay", func() { cfg.FactoryDelay = flags.FactoryDelay })
	set("ttl", func() { cfg.TTL = flags.TTL })
	set("sliding", func() { cfg.Sliding = flags.Sliding })
	set("immediate", func() { cfg.Immediate = flags.Immediate })
	set("errors", func() { cfg.ErrorPct = flags.ErrorPct })
	set("async", func() { cfg.AsyncPct = flags.AsyncPct })
	set("pprof", func() { cfg.PprofAddr = flags.PprofAddr })
	set("http", func() { cfg.MetricsAddr = flags.MetricsAddr })

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.Policy != "lru" && c.Policy != "2q":
		return fmt.Errorf("%w: policy %q (use lru or 2q)", errBadValue, c.Policy)
	case c.Keys < 1:
		return fmt.Errorf("%w: keys must be >= 1", errBadValue)
	case c.ZipfS <= 1 || c.ZipfV < 1:
		return fmt.Errorf("%w: zipf needs s > 1 and v >= 1", errBadValue)
	case c.ErrorPct < 0 || c.ErrorPct > 100:
		return fmt.Errorf("%w: errors must be in [0..100]", errBadValue)
	case c.AsyncPct < 0 || c.AsyncPct > 100:
		return fmt.Errorf("%w: async must be in [0..100]", errBadValue)
	case c.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", errBadValue)
	}
	return nil
}
