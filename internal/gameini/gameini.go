// Package gameini writes the server's per-map INI files from the manager
// configuration.
package gameini

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/ini.v1"

	"github.com/loykin/asamgr/internal/config"
)

func init() {
	// the server writes key=value without padding
	ini.PrettyFormat = false
}

// Path returns where the server reads the INI file called name.
func Path(installFolder, name string) string {
	return filepath.Join(installFolder, "ShooterGame", "Saved", "Config", "WindowsServer", name+".ini")
}

// Build merges sections into the INI file name under installFolder. Keys
// absent from sections are left untouched, so Build is idempotent.
func Build(installFolder, name string, sections map[string]map[string]any) error {
	path := Path(installFolder, name)
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true, IgnoreInlineComment: true}, path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	secNames := make([]string, 0, len(sections))
	for s := range sections {
		secNames = append(secNames, s)
	}
	sort.Strings(secNames)
	for _, s := range secNames {
		sec := f.Section(s)
		keys := make([]string, 0, len(sections[s]))
		for k := range sections[s] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sec.Key(k).SetValue(config.FormatValue(sections[s][k]))
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return f.SaveTo(path)
}

// BuildAll writes every templated INI file from cfg.
func BuildAll(cfg *config.Config) error {
	for _, name := range config.IniFiles {
		if err := Build(cfg.Ark.InstallFolder, name, cfg.Game.Ini[name]); err != nil {
			return err
		}
	}
	return nil
}
