// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Network() NetworkConfig
	Loader() LoaderConfig
	Widgets() WidgetsConfig
	Bridge() BridgeConfig
	Engine() EngineConfig

	// Network Setters
	SetNetworkBaseURL(string)
	SetNetworkTimeout(d time.Duration)

	// Loader Setters
	SetLoaderURLRetryDelay(d time.Duration)

	// Bridge Setters
	SetBridgeDrawerResetFormsOnShow(bool)
}

// Config holds the entire application configuration.
// Sections are exported so viper can unmarshal into them; callers should
// prefer the Interface getters.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	NetworkCfg NetworkConfig `mapstructure:"network" yaml:"network"`
	LoaderCfg  LoaderConfig  `mapstructure:"loader" yaml:"loader"`
	WidgetsCfg WidgetsConfig `mapstructure:"widgets" yaml:"widgets"`
	BridgeCfg  BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	EngineCfg  EngineConfig  `mapstructure:"engine" yaml:"engine"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Network() NetworkConfig { return c.NetworkCfg }
func (c *Config) Loader() LoaderConfig   { return c.LoaderCfg }
func (c *Config) Widgets() WidgetsConfig { return c.WidgetsCfg }
func (c *Config) Bridge() BridgeConfig   { return c.BridgeCfg }
func (c *Config) Engine() EngineConfig   { return c.EngineCfg }

// --- Interface Method Implementations (Setters) ---

// Network Setters
func (c *Config) SetNetworkBaseURL(u string)        { c.NetworkCfg.BaseURL = u }
func (c *Config) SetNetworkTimeout(d time.Duration) { c.NetworkCfg.Timeout = d }

// Loader Setters
func (c *Config) SetLoaderURLRetryDelay(d time.Duration) { c.LoaderCfg.URLRetryDelay = d }

// Bridge Setters
func (c *Config) SetBridgeDrawerResetFormsOnShow(b bool) { c.BridgeCfg.DrawerResetFormsOnShow = b }

// LoggerConfig holds the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// NetworkConfig controls how fragments are fetched.
type NetworkConfig struct {
	// BaseURL resolves relative fragment URLs, standing in for window.location.origin.
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	// MaxRequestsPerSecond throttles fragment fetches. Zero disables throttling.
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second" yaml:"max_requests_per_second"`
	Burst                int     `mapstructure:"burst" yaml:"burst"`
}

// LoaderConfig holds lazy frame settings.
type LoaderConfig struct {
	FormatParam         string        `mapstructure:"format_param" yaml:"format_param"`
	VisibilityThreshold float64       `mapstructure:"visibility_threshold" yaml:"visibility_threshold"`
	URLRetryDelay       time.Duration `mapstructure:"url_retry_delay" yaml:"url_retry_delay"`
	DefaultEvent        string        `mapstructure:"default_event" yaml:"default_event"`
}

// WidgetsConfig holds the timing knobs used by the widget controllers.
type WidgetsConfig struct {
	ModalFocusDelay     time.Duration `mapstructure:"modal_focus_delay" yaml:"modal_focus_delay"`
	FocusWatchTimeout   time.Duration `mapstructure:"focus_watch_timeout" yaml:"focus_watch_timeout"`
	FocusRestoreDelay   time.Duration `mapstructure:"focus_restore_delay" yaml:"focus_restore_delay"`
	DrawerSwitchDelay   time.Duration `mapstructure:"drawer_switch_delay" yaml:"drawer_switch_delay"`
	DrawerFocusDelay    time.Duration `mapstructure:"drawer_focus_delay" yaml:"drawer_focus_delay"`
	FrameDelay          time.Duration `mapstructure:"frame_delay" yaml:"frame_delay"`
	StreamActiveWindow  time.Duration `mapstructure:"stream_active_window" yaml:"stream_active_window"`
	DismissFocusPoll    time.Duration `mapstructure:"dismiss_focus_poll" yaml:"dismiss_focus_poll"`
	ClipboardResetDelay time.Duration `mapstructure:"clipboard_reset_delay" yaml:"clipboard_reset_delay"`
}

// BridgeConfig holds settings for the remote-control bridge.
type BridgeConfig struct {
	// DrawerResetFormsOnShow applies reset_forms to show actions as well as hide.
	DrawerResetFormsOnShow bool `mapstructure:"drawer_reset_forms_on_show" yaml:"drawer_reset_forms_on_show"`
}

// EngineConfig controls headless page rendering.
type EngineConfig struct {
	// WorkerConcurrency is how many pages render at once.
	WorkerConcurrency int           `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	PageTimeout       time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`
	// SettleTime is the loop time advanced after fetches drain, so pending
	// widget timers fire before the page is captured.
	SettleTime time.Duration `mapstructure:"settle_time" yaml:"settle_time"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "morphkit")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Network --
	v.SetDefault("network.base_url", "http://localhost:3000")
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.user_agent", "morphkit/1.0")
	v.SetDefault("network.max_requests_per_second", 0.0)
	v.SetDefault("network.burst", 10)

	// -- Loader --
	v.SetDefault("loader.format_param", "turbo_stream")
	v.SetDefault("loader.visibility_threshold", 0.1)
	v.SetDefault("loader.url_retry_delay", "100ms")
	v.SetDefault("loader.default_event", "show")

	// -- Widgets --
	v.SetDefault("widgets.modal_focus_delay", "50ms")
	v.SetDefault("widgets.focus_watch_timeout", "5s")
	v.SetDefault("widgets.focus_restore_delay", "10ms")
	v.SetDefault("widgets.drawer_switch_delay", "50ms")
	v.SetDefault("widgets.drawer_focus_delay", "100ms")
	v.SetDefault("widgets.frame_delay", "16ms")
	v.SetDefault("widgets.stream_active_window", "1s")
	v.SetDefault("widgets.dismiss_focus_poll", "250ms")
	v.SetDefault("widgets.clipboard_reset_delay", "2s")

	// -- Bridge --
	v.SetDefault("bridge.drawer_reset_forms_on_show", true)

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", 4)
	v.SetDefault("engine.page_timeout", "30s")
	v.SetDefault("engine.settle_time", "5s")
}

// NewConfigFromViper unmarshals a viper instance into a validated Config.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.NetworkCfg.Validate(); err != nil {
		return fmt.Errorf("network configuration invalid: %w", err)
	}
	if err := c.LoaderCfg.Validate(); err != nil {
		return fmt.Errorf("loader configuration invalid: %w", err)
	}
	if err := c.WidgetsCfg.Validate(); err != nil {
		return fmt.Errorf("widgets configuration invalid: %w", err)
	}
	if err := c.EngineCfg.Validate(); err != nil {
		return fmt.Errorf("engine configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the network settings.
func (n *NetworkConfig) Validate() error {
	if n.BaseURL != "" {
		u, err := url.Parse(n.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base_url must be an absolute URL, got %q", n.BaseURL)
		}
	}
	if n.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if n.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("max_requests_per_second must not be negative")
	}
	if n.MaxRequestsPerSecond > 0 && n.Burst <= 0 {
		return fmt.Errorf("burst must be a positive integer when throttling is enabled")
	}
	return nil
}

// Validate checks the loader settings.
func (l *LoaderConfig) Validate() error {
	if l.FormatParam == "" {
		return fmt.Errorf("format_param is required")
	}
	if l.VisibilityThreshold < 0 || l.VisibilityThreshold > 1 {
		return fmt.Errorf("visibility_threshold must be between 0.0 and 1.0")
	}
	if l.URLRetryDelay < 0 {
		return fmt.Errorf("url_retry_delay must not be negative")
	}
	return nil
}

// Validate checks that no widget timing is negative.
func (w *WidgetsConfig) Validate() error {
	durations := map[string]time.Duration{
		"modal_focus_delay":     w.ModalFocusDelay,
		"focus_watch_timeout":   w.FocusWatchTimeout,
		"focus_restore_delay":   w.FocusRestoreDelay,
		"drawer_switch_delay":   w.DrawerSwitchDelay,
		"drawer_focus_delay":    w.DrawerFocusDelay,
		"frame_delay":           w.FrameDelay,
		"stream_active_window":  w.StreamActiveWindow,
		"clipboard_reset_delay": w.ClipboardResetDelay,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if w.DismissFocusPoll <= 0 {
		return fmt.Errorf("dismiss_focus_poll must be a positive duration")
	}
	return nil
}

// Validate checks the engine settings.
func (e *EngineConfig) Validate() error {
	if e.WorkerConcurrency < 0 {
		return fmt.Errorf("worker_concurrency must not be negative")
	}
	if e.PageTimeout < 0 {
		return fmt.Errorf("page_timeout must not be negative")
	}
	if e.SettleTime < 0 {
		return fmt.Errorf("settle_time must not be negative")
	}
	return nil
}
