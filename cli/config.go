package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/semver"

	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/runtime"
	"github.com/seeed-sh/seeed/runtime/remote"
	"github.com/seeed-sh/seeed/runtime/target"
)

const (
	defaultShell      = remote.DefaultShell
	defaultConfigFile = "seeed.toml"
)

// options holds the raw flag values.
type options struct {
	target          string
	sudo            bool
	shell           string
	envFile         string
	debug           bool
	knownHosts      string
	insecureHostKey bool
	noColor         bool
	configPath      string
	watch           bool
}

// fileConfig mirrors seeed.toml. Every key is optional.
type fileConfig struct {
	Target          string `toml:"target"`
	Sudo            bool   `toml:"sudo"`
	Shell           string `toml:"shell"`
	EnvFile         string `toml:"env_file"`
	Debug           bool   `toml:"debug"`
	KnownHosts      string `toml:"known_hosts"`
	InsecureHostKey bool   `toml:"insecure_host_key"`
	NoColor         bool   `toml:"no_color"`
	MinVersion      string `toml:"min_version"`
}

// resolveConfig merges flags, the config file and defaults. A flag the user
// set wins over the file; the file wins over the flag's default.
func resolveConfig(opts options, changed func(name string) bool, scriptPath string) (runtime.RunConfig, error) {
	cfg := runtime.RunConfig{
		Sudo:            opts.sudo,
		Shell:           opts.shell,
		EnvFile:         opts.envFile,
		Debug:           opts.debug,
		ScriptPath:      displayPath(scriptPath),
		WorkDir:         scriptDir(scriptPath),
		KnownHostsPath:  opts.knownHosts,
		InsecureHostKey: opts.insecureHostKey,
		NoColor:         opts.noColor,
	}
	targetText := opts.target

	path, explicit := opts.configPath, true
	if path == "" {
		path, explicit = defaultConfigFile, false
	}

	if _, err := os.Stat(path); err == nil || explicit {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return runtime.RunConfig{}, errors.NewConfigError("cannot load config "+path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return runtime.RunConfig{}, errors.NewConfigError("unknown keys in "+path+": "+strings.Join(keys, ", "), nil).
				WithHint("valid keys: target, sudo, shell, env_file, debug, known_hosts, insecure_host_key, no_color, min_version")
		}

		if meta.IsDefined("min_version") {
			if err := checkMinVersion(raw.MinVersion, version); err != nil {
				return runtime.RunConfig{}, err
			}
		}

		if meta.IsDefined("target") && !changed("target") {
			targetText = strings.TrimSpace(raw.Target)
		}
		if meta.IsDefined("sudo") && !changed("sudo") {
			cfg.Sudo = raw.Sudo
		}
		if meta.IsDefined("shell") && !changed("shell") {
			cfg.Shell = strings.TrimSpace(raw.Shell)
		}
		if meta.IsDefined("env_file") && !changed("env-file") {
			cfg.EnvFile = strings.TrimSpace(raw.EnvFile)
		}
		if meta.IsDefined("debug") && !changed("debug") {
			cfg.Debug = raw.Debug
		}
		if meta.IsDefined("known_hosts") && !changed("known-hosts") {
			cfg.KnownHostsPath = strings.TrimSpace(raw.KnownHosts)
		}
		if meta.IsDefined("insecure_host_key") && !changed("insecure-host-key") {
			cfg.InsecureHostKey = raw.InsecureHostKey
		}
		if meta.IsDefined("no_color") && !changed("no-color") {
			cfg.NoColor = raw.NoColor
		}
	}

	if cfg.Shell == "" {
		cfg.Shell = defaultShell
	}

	if targetText != "" {
		spec, err := target.Parse(targetText)
		if err != nil {
			return runtime.RunConfig{}, errors.NewConfigError("bad target setting", err).
				WithHint("use user@host or user@host:port")
		}
		cfg.Target = &spec
	}

	return cfg, nil
}

// scriptDir is where relative local paths in the script resolve: the
// script's own directory, or the process directory for stdin.
func scriptDir(path string) string {
	if path == "-" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Dir(path)
	}
	return filepath.Dir(abs)
}

// checkMinVersion rejects a config that needs a newer seeed. Builds without a
// semantic version (e.g. "dev") satisfy any minimum.
func checkMinVersion(minimum, running string) error {
	want := canonicalVersion(minimum)
	if !semver.IsValid(want) {
		return errors.NewConfigError(fmt.Sprintf("min_version %q is not a semantic version", minimum), nil)
	}

	have := canonicalVersion(running)
	if !semver.IsValid(have) {
		return nil
	}
	if semver.Compare(have, want) < 0 {
		return errors.NewConfigError(fmt.Sprintf("this config needs seeed %s or newer, running %s", want, have), nil).
			WithHint("upgrade seeed or lower min_version")
	}
	return nil
}

// canonicalVersion accepts versions with or without the leading "v".
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
