package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// GameConfig is the case-preserving [ark.config] section.
type GameConfig struct {
	Map            string
	EnableBattlEye bool
	Main           map[string]any
	Flags          map[string]any
	Opts           map[string]any
	// Ini maps an INI file name to section to key/value.
	Ini map[string]map[string]map[string]any
}

// Main arguments whose values go on the command line in double quotes.
var quotedMainArgs = map[string]bool{
	"SessionName":         true,
	"ServerAdminPassword": true,
}

func parseGameConfig(raw map[string]any) GameConfig {
	g := GameConfig{
		Main:  map[string]any{},
		Flags: map[string]any{},
		Opts:  map[string]any{},
		Ini:   map[string]map[string]map[string]any{},
	}
	if raw == nil {
		return g
	}
	if s, ok := raw["map"].(string); ok {
		g.Map = s
	}
	if b, ok := asBool(raw["enable_battleye"]); ok {
		g.EnableBattlEye = b
	}
	if m, ok := raw["main"].(map[string]any); ok {
		g.Main = m
	}
	if m, ok := raw["flags"].(map[string]any); ok {
		g.Flags = m
	}
	if m, ok := raw["opts"].(map[string]any); ok {
		g.Opts = m
	}
	for _, name := range IniFiles {
		file, ok := raw[name].(map[string]any)
		if !ok {
			continue
		}
		sections := map[string]map[string]any{}
		for sec, v := range file {
			if kv, ok := v.(map[string]any); ok {
				sections[sec] = kv
			}
		}
		g.Ini[name] = sections
	}
	return g
}

// lookup returns the value of key from [ark.config.main], overridden by
// [ark.config.GameUserSettings.ServerSettings] when set there.
func (g GameConfig) lookup(key string) (any, bool) {
	v, ok := g.Main[key]
	if ss, found := g.Ini["GameUserSettings"]["ServerSettings"]; found {
		if o, set := ss[key]; set {
			v, ok = o, true
		}
	}
	return v, ok
}

// Port returns the game port, 7777 when unset.
func (c *Config) Port() int {
	if n, ok := asInt(c.Game.Main["Port"]); ok {
		return n
	}
	return DefaultPort
}

func (c *Config) RCONEnabled() bool {
	v, ok := c.Game.lookup("RCONEnabled")
	if !ok {
		return false
	}
	b, _ := asBool(v)
	return b
}

// RCONPort returns the RCON port, or -1 when RCON is disabled or no port is
// configured.
func (c *Config) RCONPort() int {
	if !c.RCONEnabled() {
		return -1
	}
	v, ok := c.Game.lookup("RCONPort")
	if !ok {
		return -1
	}
	if n, ok := asInt(v); ok {
		return n
	}
	return -1
}

func (c *Config) AdminPassword() string {
	v, ok := c.Game.lookup("ServerAdminPassword")
	if !ok {
		return ""
	}
	return strings.Trim(FormatValue(v), `"`)
}

// CmdlineArgs returns the map argument (Map?Key=Val...), the flags and the
// options of the server command line. Keys are emitted in sorted order.
func (c *Config) CmdlineArgs() (string, []string, []string) {
	var b strings.Builder
	b.WriteString(c.Game.Map)
	for _, k := range sortedKeys(c.Game.Main) {
		val := FormatValue(c.Game.Main[k])
		if quotedMainArgs[k] {
			val = `"` + strings.Trim(val, `"`) + `"`
		}
		b.WriteString("?" + k + "=" + val)
	}

	flags := []string{"-NoBattlEye"}
	if c.Game.EnableBattlEye {
		flags[0] = "-BattlEye"
	}
	for _, k := range sortedKeys(c.Game.Flags) {
		if on, _ := asBool(c.Game.Flags[k]); on {
			flags = append(flags, "-"+k)
		}
	}

	opts := make([]string, 0, len(c.Game.Opts))
	for _, k := range sortedKeys(c.Game.Opts) {
		opts = append(opts, "-"+k+"="+FormatValue(c.Game.Opts[k]))
	}
	return b.String(), flags, opts
}

// LaunchArgs returns the full argv: start command, its args, the server
// binary, then the game arguments. The map argument is split on spaces
// because the server ignores quoting when parsing it.
func (c *Config) LaunchArgs() []string {
	main, flags, opts := c.CmdlineArgs()
	args := []string{c.Ark.Proton.StartCommand}
	args = append(args, c.Ark.Proton.StartArgs...)
	args = append(args, c.ServerBinary())
	args = append(args, strings.Split(main, " ")...)
	args = append(args, flags...)
	args = append(args, opts...)
	return args
}

// FormatValue renders a TOML value the way the server expects it.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int64:
		return int(t), true
	case int:
		return t, true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	case int64:
		return t != 0, true
	}
	return false, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
