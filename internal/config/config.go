// Package config loads cypherview settings: defaults, then an optional TOML
// file, then environment variables, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/systemshift/cypherview/internal/gateway"
	"github.com/systemshift/cypherview/internal/viz/interact"
	"github.com/systemshift/cypherview/internal/viz/layout"
	"github.com/systemshift/cypherview/internal/viz/palette"
	"github.com/systemshift/cypherview/internal/viz/session"
)

// EnvPrefix prefixes every cypherview environment variable.
const EnvPrefix = "CYPHERVIEW_"

// Duration is a time.Duration written as "15s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all settings.
type Config struct {
	Server    ServerConfig              `toml:"server"`
	Log       LogConfig                 `toml:"log"`
	Gateway   GatewayConfig             `toml:"gateway"`
	Databases map[string]DatabaseConfig `toml:"databases" validate:"dive"`
	Layout    LayoutConfig              `toml:"layout"`
	View      ViewConfig                `toml:"view"`
	Palette   PaletteConfig             `toml:"palette"`
	Cache     CacheConfig               `toml:"cache"`
	Metrics   MetricsConfig             `toml:"metrics"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr            string   `toml:"addr" validate:"required"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	AllowedOrigins  []string `toml:"allowed_origins" validate:"min=1"`
	MaxSessions     int      `toml:"max_sessions" validate:"gte=0"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level       string `toml:"level" validate:"oneof=debug info warn error"`
	Development bool   `toml:"development"`
}

// GatewayConfig points the visualizer at a query API. With no URL the
// server runs queries against its own configured databases.
type GatewayConfig struct {
	URL          string   `toml:"url" validate:"omitempty,url"`
	Timeout      Duration `toml:"timeout"`
	FailureRatio float64  `toml:"failure_ratio" validate:"gt=0,lte=1"`
	MinRequests  uint32   `toml:"min_requests"`
	OpenTimeout  Duration `toml:"open_timeout"`
}

// DatabaseConfig is one Neo4j database reachable by name.
type DatabaseConfig struct {
	URI      string `toml:"uri" validate:"required"`
	Username string `toml:"username" validate:"required"`
	Password string `toml:"password" validate:"required"`
	// Database selects a database inside the server; empty is the default.
	Database string `toml:"database"`
}

// LayoutConfig tunes the force simulation.
type LayoutConfig struct {
	Width             float64 `toml:"width" validate:"gt=0"`
	Height            float64 `toml:"height" validate:"gt=0"`
	LinkDistance      float64 `toml:"link_distance" validate:"gt=0"`
	ChargeStrength    float64 `toml:"charge_strength"`
	ChargeDistanceMax float64 `toml:"charge_distance_max"`
	VelocityDecay     float64 `toml:"velocity_decay" validate:"gte=0,lt=1"`
	AlphaMin          float64 `toml:"alpha_min" validate:"gt=0,lt=1"`
	ReheatTarget      float64 `toml:"reheat_target" validate:"gte=0,lte=1"`
	Seed              uint64  `toml:"seed"`
}

// ViewConfig controls interaction and the session loop.
type ViewConfig struct {
	MinScale              float64  `toml:"min_scale" validate:"gt=0"`
	MaxScale              float64  `toml:"max_scale" validate:"gtfield=MinScale"`
	NodeRadius            float64  `toml:"node_radius" validate:"gt=0"`
	DeselectOnCanvasClick bool     `toml:"deselect_on_canvas_click"`
	TickInterval          Duration `toml:"tick_interval"`
	FetchTimeout          Duration `toml:"fetch_timeout"`
	SessionIdleTimeout    Duration `toml:"session_idle_timeout"`
}

// PaletteConfig controls label colors.
type PaletteConfig struct {
	Size       int     `toml:"size" validate:"gt=0"`
	Saturation float64 `toml:"saturation" validate:"gte=0,lte=1"`
	Lightness  float64 `toml:"lightness" validate:"gte=0,lte=1"`
	Seed       uint64  `toml:"seed"`
}

// CacheConfig selects where query results are cached.
type CacheConfig struct {
	Backend        string   `toml:"backend" validate:"oneof=none memory redis sqlite"`
	TTL            Duration `toml:"ttl"`
	MaxEntries     int      `toml:"max_entries" validate:"gte=0"`
	ModelCacheSize int      `toml:"model_cache_size" validate:"gte=0"`
	RedisAddr      string   `toml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword  string   `toml:"redis_password"`
	RedisDB        int      `toml:"redis_db"`
	SQLitePath     string   `toml:"sqlite_path" validate:"required_if=Backend sqlite"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path" validate:"startswith=/"`
	Namespace string `toml:"namespace" validate:"required"`
}

// Default returns the default configuration.
func Default() *Config {
	lo := layout.DefaultOptions()
	po := palette.DefaultOptions()
	vo := interact.DefaultOptions()
	so := session.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{15 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			ShutdownTimeout: Duration{5 * time.Second},
			AllowedOrigins:  []string{"*"},
		},
		Log: LogConfig{Level: "info"},
		Gateway: GatewayConfig{
			Timeout:      Duration{30 * time.Second},
			FailureRatio: 0.8,
			MinRequests:  5,
			OpenTimeout:  Duration{60 * time.Second},
		},
		Databases: map[string]DatabaseConfig{},
		Layout: LayoutConfig{
			Width:             lo.Width,
			Height:            lo.Height,
			LinkDistance:      lo.LinkDistance,
			ChargeStrength:    lo.ChargeStrength,
			ChargeDistanceMax: lo.ChargeDistanceMax,
			VelocityDecay:     lo.VelocityDecay,
			AlphaMin:          lo.AlphaMin,
			ReheatTarget:      lo.ReheatTarget,
		},
		View: ViewConfig{
			MinScale:              vo.MinScale,
			MaxScale:              vo.MaxScale,
			NodeRadius:            vo.NodeRadius,
			DeselectOnCanvasClick: vo.DeselectOnCanvasClick,
			TickInterval:          Duration{so.TickInterval},
			FetchTimeout:          Duration{so.FetchTimeout},
			SessionIdleTimeout:    Duration{so.IdleTimeout},
		},
		Palette: PaletteConfig{
			Size:       po.Size,
			Saturation: po.Saturation,
			Lightness:  po.Lightness,
		},
		Cache: CacheConfig{
			Backend:        "memory",
			TTL:            Duration{5 * time.Minute},
			MaxEntries:     256,
			ModelCacheSize: so.ModelCacheSize,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "cypherview",
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// path is not empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := cfg.applyEnv(os.Environ()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables. Per-database credentials use
// NEO4J_URI_<db>, NEO4J_USERNAME_<db> and NEO4J_PASSWORD_<db>.
func (c *Config) applyEnv(environ []string) error {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	str := func(key string, dst *string) {
		if v, ok := env[key]; ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *Duration) {
		if v, ok := env[key]; ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := env[key]; ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	if port, ok := env["PORT"]; ok && port != "" {
		c.Server.Addr = ":" + port
	}
	str(EnvPrefix+"ADDR", &c.Server.Addr)
	str(EnvPrefix+"LOG_LEVEL", &c.Log.Level)
	boolean(EnvPrefix+"LOG_DEVELOPMENT", &c.Log.Development)
	str(EnvPrefix+"GATEWAY_URL", &c.Gateway.URL)
	dur(EnvPrefix+"GATEWAY_TIMEOUT", &c.Gateway.Timeout)
	str(EnvPrefix+"CACHE_BACKEND", &c.Cache.Backend)
	dur(EnvPrefix+"CACHE_TTL", &c.Cache.TTL)
	str(EnvPrefix+"REDIS_ADDR", &c.Cache.RedisAddr)
	str(EnvPrefix+"REDIS_PASSWORD", &c.Cache.RedisPassword)
	str(EnvPrefix+"SQLITE_PATH", &c.Cache.SQLitePath)
	boolean(EnvPrefix+"METRICS_ENABLED", &c.Metrics.Enabled)
	dur(EnvPrefix+"TICK_INTERVAL", &c.View.TickInterval)
	dur(EnvPrefix+"SESSION_IDLE_TIMEOUT", &c.View.SessionIdleTimeout)
	if v, ok := env[EnvPrefix+"ALLOWED_ORIGINS"]; ok && v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}

	const (
		uriPrefix  = "NEO4J_URI_"
		userPrefix = "NEO4J_USERNAME_"
		passPrefix = "NEO4J_PASSWORD_"
	)
	if c.Databases == nil {
		c.Databases = map[string]DatabaseConfig{}
	}
	for k, v := range env {
		var name string
		var set func(*DatabaseConfig)
		switch {
		case strings.HasPrefix(k, uriPrefix):
			name, set = k[len(uriPrefix):], func(d *DatabaseConfig) { d.URI = v }
		case strings.HasPrefix(k, userPrefix):
			name, set = k[len(userPrefix):], func(d *DatabaseConfig) { d.Username = v }
		case strings.HasPrefix(k, passPrefix):
			name, set = k[len(passPrefix):], func(d *DatabaseConfig) { d.Password = v }
		default:
			continue
		}
		if name == "" {
			continue
		}
		db := c.Databases[name]
		set(&db)
		c.Databases[name] = db
	}

	return errors.Join(errs...)
}

// DatabaseNames returns the configured database names, sorted.
func (c *Config) DatabaseNames() []string {
	names := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LayoutOptions converts the layout section.
func (c *Config) LayoutOptions() layout.Options {
	o := layout.DefaultOptions()
	o.Width = c.Layout.Width
	o.Height = c.Layout.Height
	o.LinkDistance = c.Layout.LinkDistance
	o.ChargeStrength = c.Layout.ChargeStrength
	o.ChargeDistanceMax = c.Layout.ChargeDistanceMax
	o.VelocityDecay = c.Layout.VelocityDecay
	o.AlphaMin = c.Layout.AlphaMin
	o.ReheatTarget = c.Layout.ReheatTarget
	o.Seed = c.Layout.Seed
	return o
}

// SessionOptions converts the view, layout and palette sections.
func (c *Config) SessionOptions() session.Options {
	o := session.DefaultOptions()
	o.TickInterval = c.View.TickInterval.Duration
	o.FetchTimeout = c.View.FetchTimeout.Duration
	o.IdleTimeout = c.View.SessionIdleTimeout.Duration
	o.MaxSessions = c.Server.MaxSessions
	o.ModelCacheSize = c.Cache.ModelCacheSize
	o.Layout = c.LayoutOptions()
	o.Interact = interact.Options{
		MinScale:              c.View.MinScale,
		MaxScale:              c.View.MaxScale,
		NodeRadius:            c.View.NodeRadius,
		EdgeTolerance:         interact.DefaultOptions().EdgeTolerance,
		DeselectOnCanvasClick: c.View.DeselectOnCanvasClick,
	}
	o.Palette = palette.Options{
		Size:       c.Palette.Size,
		Saturation: c.Palette.Saturation,
		Lightness:  c.Palette.Lightness,
		Seed:       c.Palette.Seed,
	}
	return o
}

// GatewayClientConfig converts the gateway section.
func (c *Config) GatewayClientConfig() gateway.Config {
	g := gateway.DefaultConfig(c.Gateway.URL)
	g.Timeout = c.Gateway.Timeout.Duration
	g.FailureRatio = c.Gateway.FailureRatio
	g.MinRequests = c.Gateway.MinRequests
	g.OpenTimeout = c.Gateway.OpenTimeout.Duration
	return g
}
