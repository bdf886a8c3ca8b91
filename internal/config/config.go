package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/botherd/botherd/internal/logger"
	"github.com/botherd/botherd/internal/process"
)

// Defaults for the manager's control-plane listener.
const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 9300
	DefaultStopWait = 5 * time.Second
)

// ManagerConfig is the [manager] section.
type ManagerConfig struct {
	Host               string        `toml:"host" mapstructure:"host"`
	Port               int           `toml:"port" mapstructure:"port"`
	StopBotsOnShutdown bool          `toml:"stop_bots_on_shutdown" mapstructure:"stop_bots_on_shutdown"`
	StopWait           time.Duration `toml:"stop_wait" mapstructure:"stop_wait"`
}

// Addr returns the control-plane listen address.
func (m ManagerConfig) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// APIConfig is the [api] section for the operator HTTP surface.
type APIConfig struct {
	Listen        string     `toml:"listen" mapstructure:"listen"`
	BasePath      string     `toml:"base_path" mapstructure:"base_path"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
}

// TLSConfig is the [api.tls] section. Either explicit cert/key files or a
// directory holding tls.crt/tls.key, optionally auto-generated.
type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

// AutoGenTLS tunes self-signed certificate generation.
type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

// StoreConfig is the [store] section for the persisted process table.
type StoreConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// HistoryConfig is the [history] section for lifecycle event sinks.
type HistoryConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	DSNs    []string `toml:"dsns" mapstructure:"dsns"`
}

// MetricsConfig is the [metrics] section.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// BotConfig is one [[bots]] entry.
type BotConfig struct {
	ID       string             `toml:"id" mapstructure:"id"`
	Type     string             `toml:"type" mapstructure:"type"`
	TokenEnv string             `toml:"token_env" mapstructure:"token_env"`
	Command  string             `toml:"command" mapstructure:"command"`
	WorkDir  string             `toml:"workdir" mapstructure:"workdir"`
	Env      []string           `toml:"env" mapstructure:"env"`
	Log      *logger.FileConfig `toml:"log" mapstructure:"log"`
}

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Env      []string       `toml:"env" mapstructure:"env"`
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	Manager  ManagerConfig  `toml:"manager" mapstructure:"manager"`
	API      *APIConfig     `toml:"api" mapstructure:"api"`
	Log      logger.Config  `toml:"log" mapstructure:"log"`
	Store    *StoreConfig   `toml:"store" mapstructure:"store"`
	History  *HistoryConfig `toml:"history" mapstructure:"history"`
	Metrics  *MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Bots     []BotConfig    `toml:"bots" mapstructure:"bots"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if fc.Manager.Host == "" {
		fc.Manager.Host = DefaultHost
	}
	if fc.Manager.Port == 0 {
		fc.Manager.Port = DefaultPort
	}
	if fc.Manager.Port < 0 || fc.Manager.Port > 65535 {
		return nil, fmt.Errorf("manager port %d out of range", fc.Manager.Port)
	}
	if fc.Manager.StopWait <= 0 {
		fc.Manager.StopWait = DefaultStopWait
	}
	seen := make(map[string]bool, len(fc.Bots))
	for _, b := range fc.Bots {
		if b.ID == "" {
			return nil, fmt.Errorf("bot entry missing id")
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("duplicate bot id %q", b.ID)
		}
		seen[b.ID] = true
	}
	return &fc, nil
}

// Specs converts the [[bots]] entries into launchable process specs.
// A bot without an explicit command re-execs the current binary as
// "<self> worker --id <id> --addr <manager addr>".
func (fc *FileConfig) Specs() ([]process.Spec, error) {
	out := make([]process.Spec, 0, len(fc.Bots))
	for _, b := range fc.Bots {
		cmd := b.Command
		if cmd == "" {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("resolve default command for bot %s: %w", b.ID, err)
			}
			cmd = fmt.Sprintf("%s worker --id %s --addr %s --type %s",
				exe, b.ID, fc.Manager.Addr(), workerType(b.Type))
		}
		logCfg := fc.Log
		if b.Log != nil {
			logCfg.File = mergeFileConfig(fc.Log.File, *b.Log)
		}
		out = append(out, process.Spec{
			BotID:       b.ID,
			Type:        workerType(b.Type),
			Command:     cmd,
			WorkDir:     b.WorkDir,
			Env:         b.Env,
			TokenEnvVar: b.TokenEnv,
			Log:         logCfg,
		})
	}
	return out, nil
}

func workerType(t string) string {
	if t == "" {
		return "echo"
	}
	return t
}

func mergeFileConfig(base, over logger.FileConfig) logger.FileConfig {
	if over.Dir != "" {
		base.Dir = over.Dir
	}
	if over.StdoutPath != "" {
		base.StdoutPath = over.StdoutPath
	}
	if over.StderrPath != "" {
		base.StderrPath = over.StderrPath
	}
	if over.MaxSizeMB != 0 {
		base.MaxSizeMB = over.MaxSizeMB
	}
	if over.MaxBackups != 0 {
		base.MaxBackups = over.MaxBackups
	}
	if over.MaxAgeDays != 0 {
		base.MaxAgeDays = over.MaxAgeDays
	}
	if over.Compress {
		base.Compress = true
	}
	return base
}

// LoadGlobalEnv merges env from config: top-level env, env_files contents, and
// optionally OS env when use_os_env is true. Precedence: OS env (when enabled)
// is the base; env file vars apply next; the top-level env list overrides last.
func LoadGlobalEnv(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, val := range pairs {
			m[k] = val
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, val := range m {
		out = append(out, k+"="+val)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			val := strings.TrimSpace(line[i+1:])
			m[k] = val
		}
	}
	return m, nil
}
