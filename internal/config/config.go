package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/loykin/asamgr/internal/env"
)

// StartTypeProton is the only launch mode supported: the Windows server
// binary run through a proton wrapper.
const StartTypeProton = "LINUX_PROTON"

const DefaultPort = 7777

// INI file names that can be templated from [ark.config.<Name>.<Section>].
var IniFiles = []string{"GameUserSettings", "Game"}

var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError names the offending key of a rejected configuration.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// Config is the manager configuration. Everything except the game section is
// loaded through viper; GameConfig is decoded separately so ARK keys keep
// their case.
type Config struct {
	Ark      ArkConfig      `toml:"ark" mapstructure:"ark"`
	SteamCMD SteamCMDConfig `toml:"steamcmd" mapstructure:"steamcmd"`
	Manager  ManagerConfig  `toml:"manager" mapstructure:"manager"`

	Game GameConfig `toml:"-" mapstructure:"-"`
	Path string     `toml:"-" mapstructure:"-"`
}

type ArkConfig struct {
	AppID         string                 `toml:"appid" mapstructure:"appid"`
	InstallFolder string                 `toml:"install_folder" mapstructure:"install_folder"`
	Exec          ExecConfig             `toml:"exec" mapstructure:"exec"`
	Proton        ProtonConfig           `toml:"proton" mapstructure:"proton"`
	Advanced      AdvancedConfig         `toml:"advanced" mapstructure:"advanced"`
	Backup        BackupConfig           `toml:"backup" mapstructure:"backup"`
	Warn          map[string][]WarnEntry `toml:"warn" mapstructure:"warn"`
}

type ExecConfig struct {
	StartType string `toml:"start_type" mapstructure:"start_type"`
}

type ProtonConfig struct {
	StartCommand    string   `toml:"start_command" mapstructure:"start_command"`
	StartArgs       []string `toml:"start_args" mapstructure:"start_args"`
	ServerRelBinary string   `toml:"server_rel_binary" mapstructure:"server_rel_binary"`
	EnvFiles        []string `toml:"env_files" mapstructure:"env_files"`

	// StartEnv is filled from the raw TOML; viper would lower-case the names.
	StartEnv map[string]string `toml:"-" mapstructure:"-"`
}

type AdvancedConfig struct {
	PIDFile        string `toml:"pid_file" mapstructure:"pid_file"`
	LogFile        string `toml:"log_file" mapstructure:"log_file"`
	ScheduleFile   string `toml:"schedule_file" mapstructure:"schedule_file"`
	EOSFile        string `toml:"eos_file" mapstructure:"eos_file"`
	DoExitTimeout  string `toml:"do_exit_timeout" mapstructure:"do_exit_timeout"`
	EarlyExitWait  string `toml:"early_exit_wait" mapstructure:"early_exit_wait"`
	ListenAttempts int    `toml:"listen_attempts" mapstructure:"listen_attempts"`
	ListenInterval string `toml:"listen_interval" mapstructure:"listen_interval"`
	ThreadName     string `toml:"thread_name" mapstructure:"thread_name"`
	RCONAddress    string `toml:"rcon_address" mapstructure:"rcon_address"`
}

type BackupConfig struct {
	TargetDir        string        `toml:"target_dir" mapstructure:"target_dir"`
	MaxBackupSize    string        `toml:"max_backup_size" mapstructure:"max_backup_size"`
	MaxBackupNumber  int           `toml:"max_backup_number" mapstructure:"max_backup_number"`
	CompressionLevel int           `toml:"compression_level" mapstructure:"compression_level"`
	Files            []BackupFiles `toml:"files" mapstructure:"files"`
}

type BackupFiles struct {
	Folder     string   `toml:"folder" mapstructure:"folder"`
	FilesRegex []string `toml:"files_regex" mapstructure:"files_regex"`
}

// WarnEntry is one broadcast of a warning sequence. Time is how long before
// the action the message fires.
type WarnEntry struct {
	Message string `toml:"message" mapstructure:"message"`
	Time    string `toml:"time" mapstructure:"time"`
}

type SteamCMDConfig struct {
	InstallFolder string `toml:"install_folder" mapstructure:"install_folder"`
	Validate      bool   `toml:"validate" mapstructure:"validate"`
}

type ManagerConfig struct {
	Log             LogConfig `toml:"log" mapstructure:"log"`
	MetricsTextfile string    `toml:"metrics_textfile" mapstructure:"metrics_textfile"`
	HistoryDSN      string    `toml:"history_dsn" mapstructure:"history_dsn"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// rawFile is the case-preserving view of the same TOML document.
type rawFile struct {
	Ark struct {
		Config map[string]any `toml:"config"`
		Proton struct {
			StartEnv map[string]any `toml:"start_env"`
		} `toml:"proton"`
	} `toml:"ark"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ark.exec.start_type", StartTypeProton)
	v.SetDefault("ark.advanced.pid_file", "./data/server.pid")
	v.SetDefault("ark.advanced.schedule_file", "./data/schedule.toml")
	v.SetDefault("ark.advanced.eos_file", "./data/eos.toml")
	v.SetDefault("ark.advanced.do_exit_timeout", "30s")
	v.SetDefault("ark.advanced.early_exit_wait", "5s")
	v.SetDefault("ark.advanced.listen_attempts", 5)
	v.SetDefault("ark.advanced.listen_interval", "1s")
	v.SetDefault("ark.advanced.thread_name", "GameThread")
	v.SetDefault("ark.advanced.rcon_address", "127.0.0.1")
	v.SetDefault("ark.backup.max_backup_size", "0")
	v.SetDefault("ark.backup.compression_level", 6)
	v.SetDefault("manager.log.dir", "./logs")
	v.SetDefault("manager.log.file", "manager.log")
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var rf rawFile
	if err := toml.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	c.Game = parseGameConfig(rf.Ark.Config)
	c.Ark.Proton.StartEnv = make(map[string]string, len(rf.Ark.Proton.StartEnv))
	for k, val := range rf.Ark.Proton.StartEnv {
		c.Ark.Proton.StartEnv[k] = FormatValue(val)
	}
	c.Path = path

	if c.Ark.Advanced.LogFile == "" && c.Ark.InstallFolder != "" {
		c.Ark.Advanced.LogFile = filepath.Join(c.Ark.InstallFolder, "ShooterGame", "Saved", "Logs", "ShooterGame.log")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the settings every operation depends on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Ark.AppID) == "":
		return &ValidationError{Field: "ark.appid", Reason: "required"}
	case strings.TrimSpace(c.Ark.InstallFolder) == "":
		return &ValidationError{Field: "ark.install_folder", Reason: "required"}
	case strings.TrimSpace(c.Game.Map) == "":
		return &ValidationError{Field: "ark.config.map", Reason: "required"}
	case strings.TrimSpace(c.SteamCMD.InstallFolder) == "":
		return &ValidationError{Field: "steamcmd.install_folder", Reason: "required"}
	}
	if l := c.Ark.Backup.CompressionLevel; l < -1 || l > 9 {
		return &ValidationError{Field: "ark.backup.compression_level", Reason: "must be between -1 and 9"}
	}
	for _, f := range []struct{ key, val string }{
		{"ark.advanced.do_exit_timeout", c.Ark.Advanced.DoExitTimeout},
		{"ark.advanced.early_exit_wait", c.Ark.Advanced.EarlyExitWait},
		{"ark.advanced.listen_interval", c.Ark.Advanced.ListenInterval},
	} {
		if _, err := ParseHumanTime(f.val); err != nil {
			return &ValidationError{Field: f.key, Reason: err.Error()}
		}
	}
	if _, err := ParseHumanSize(c.Ark.Backup.MaxBackupSize); err != nil {
		return &ValidationError{Field: "ark.backup.max_backup_size", Reason: err.Error()}
	}
	return nil
}

func (c *Config) duration(s string, def time.Duration) time.Duration {
	d, err := ParseHumanTime(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c *Config) DoExitTimeout() time.Duration {
	return c.duration(c.Ark.Advanced.DoExitTimeout, 30*time.Second)
}

func (c *Config) EarlyExitWait() time.Duration {
	return c.duration(c.Ark.Advanced.EarlyExitWait, 5*time.Second)
}

func (c *Config) ListenInterval() time.Duration {
	return c.duration(c.Ark.Advanced.ListenInterval, time.Second)
}

func (c *Config) ListenAttempts() int {
	if c.Ark.Advanced.ListenAttempts <= 0 {
		return 5
	}
	return c.Ark.Advanced.ListenAttempts
}

// MaxBackupBytes returns the backup size budget; 0 means unlimited.
func (c *Config) MaxBackupBytes() int64 {
	n, _ := ParseHumanSize(c.Ark.Backup.MaxBackupSize)
	return n
}

// Warnings returns the warning sequence configured for kind (restart, stop
// or update).
func (c *Config) Warnings(kind string) []WarnEntry {
	return c.Ark.Warn[strings.ToLower(kind)]
}

// ServerBinary returns the absolute path of the server executable.
func (c *Config) ServerBinary() string {
	return filepath.Join(c.Ark.InstallFolder, c.Ark.Proton.ServerRelBinary)
}

// LaunchEnv returns the environment for the server: the manager's own
// environment, then env_files, then start_env. ${VAR} references in the
// configured values are expanded.
func (c *Config) LaunchEnv() ([]string, error) {
	e := env.FromOS()
	for _, p := range c.Ark.Proton.EnvFiles {
		if err := e.ApplyFile(p); err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
	}
	e.Apply(c.Ark.Proton.StartEnv)
	return e.Environ(), nil
}
