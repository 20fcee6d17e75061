// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for tokencost.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Display current configuration
//   get <key>           Print one value
//   set <key> <value>   Set a value and save the file
//   keys                List the settable keys
//   reset               Reset to default configuration
//   path                Show configuration file path
//
// Examples:
//   tokencost config
//   tokencost config get pricing.ttl_hours
//   tokencost config set pricing.ttl_hours 12
//   tokencost config set estimate.default_model claude-3.5-sonnet
//   tokencost config set pricing.aliases "sonnet=claude-3.5-sonnet,mini=gpt-4o-mini"
//   tokencost config reset
//
// Keys use dot notation; see `tokencost config keys`. Environment variables
// (TOKENCOST_*) are applied on top of the file and are not saved by `set`.

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/tokencost/internal/config"
)

var configSubcommands = []string{"show", "get", "set", "keys", "reset", "path"}

// ConfigValueData is returned by `config get` and `config set`.
type ConfigValueData struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
	Path  string      `json:"path,omitempty"`
}

// HandleConfig handles the "config" command.
func HandleConfig(env *Env, args Args) error {
	p := args.Parser()
	switch sub := p.Subcommand(); sub {
	case "", "show":
		return configShow(env)
	case "get":
		return configGet(env, p)
	case "set":
		return configSet(env, p)
	case "keys":
		return configKeys(env)
	case "reset":
		return configReset(env)
	case "path":
		return configPath(env)
	default:
		return ErrUnknownSubcommand("config", sub, configSubcommands)
	}
}

func configShow(env *Env) error {
	cfg := env.Config
	return env.emit("config show", cfg, func() error {
		fmt.Fprintln(env.Out, TitleStyle.Render("Configuration"))
		section := ""
		for _, key := range config.GetAllKeys() {
			if head, _, ok := strings.Cut(key, "."); ok && head != section {
				section = head
				fmt.Fprintln(env.Out)
				fmt.Fprintln(env.Out, SectionStyle.Render("["+section+"]"))
			}
			v, err := cfg.Get(key)
			if err != nil {
				continue
			}
			fmt.Fprintln(env.Out, RenderLabel(key, 26)+ValueStyle.Render(formatConfigValue(v)))
		}
		if path, err := config.ConfigPathTOML(); err == nil {
			fmt.Fprintln(env.Out)
			fmt.Fprintln(env.Out, DimStyle.Render("File: "+path))
		}
		return nil
	})
}

func configGet(env *Env, p *ArgParser) error {
	key := p.Positional(1)
	if key == "" {
		return ErrMissingArgument("key", "tokencost config get pricing.ttl_hours")
	}
	v, err := env.Config.Get(key)
	if err != nil {
		return &NotFoundError{Resource: "config key", ID: key, Hint: "Run `tokencost config keys` for the list."}
	}
	return env.emit("config get", ConfigValueData{Key: key, Value: v}, func() error {
		fmt.Fprintln(env.Out, formatConfigValue(v))
		return nil
	})
}

func configSet(env *Env, p *ArgParser) error {
	key, value := p.Positional(1), JoinPositionalArgs(p, 2)
	if key == "" || p.PositionalCount() < 3 {
		return ErrMissingArgument("key and value", "tokencost config set pricing.ttl_hours 12")
	}
	if _, err := env.Config.Get(key); err != nil {
		return &NotFoundError{Resource: "config key", ID: key, Hint: "Run `tokencost config keys` for the list."}
	}

	updated := env.Config.Clone()
	if err := updated.Set(key, value); err != nil {
		return NewValidationError(key, value, err.Error())
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := config.EnsureConfigDir(); err != nil {
		return NewCommandError("config", "set", "could not create the config directory", err)
	}
	if err := config.Save(updated); err != nil {
		return NewCommandError("config", "set", "could not save", err)
	}
	env.Config = updated
	config.SetGlobal(updated)
	env.Logger.Info("config updated", "key", key)

	path, _ := config.ConfigPathTOML()
	v, _ := updated.Get(key)
	return env.emit("config set", ConfigValueData{Key: key, Value: v, Path: path}, func() error {
		fmt.Fprintf(env.Out, "%s %s = %s\n", RenderStatus("ok"), key, formatConfigValue(v))
		return nil
	})
}

func configKeys(env *Env) error {
	keys := config.GetAllKeys()
	return env.emit("config keys", keys, func() error {
		for _, k := range keys {
			fmt.Fprintln(env.Out, k)
		}
		return nil
	})
}

func configReset(env *Env) error {
	if err := config.EnsureConfigDir(); err != nil {
		return NewCommandError("config", "reset", "could not create the config directory", err)
	}
	cfg := config.Default()
	if err := config.Save(cfg); err != nil {
		return NewCommandError("config", "reset", "could not save", err)
	}
	env.Config = cfg
	config.SetGlobal(cfg)
	path, _ := config.ConfigPathTOML()
	return env.emit("config reset", map[string]string{"path": path}, func() error {
		fmt.Fprintf(env.Out, "%s configuration reset to defaults (%s)\n", RenderStatus("ok"), path)
		return nil
	})
}

func configPath(env *Env) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return NewCommandError("config", "path", "no config directory", err)
	}
	_, statErr := os.Stat(path)
	data := map[string]interface{}{"path": path, "exists": statErr == nil}
	return env.emit("config path", data, func() error {
		fmt.Fprintln(env.Out, path)
		return nil
	})
}

func formatConfigValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return "(not set)"
		}
		return val
	case map[string]string:
		if len(val) == 0 {
			return "(none)"
		}
		pairs := make([]string, 0, len(val))
		for _, k := range sortedKeys(val) {
			pairs = append(pairs, k+"="+val[k])
		}
		return strings.Join(pairs, ",")
	default:
		return fmt.Sprint(val)
	}
}
