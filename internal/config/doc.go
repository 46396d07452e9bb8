// Package config provides the configuration system for lspsync.
//
// Configuration is organized in layers with higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← LSPSYNC_SERVER_COMMAND, ...
//	├─────────────────────────────┤
//	│  2. Config File             │  ← lspsync.toml / lspsync.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// The layering itself is done by viper. Files are parsed here, TOML with
// go-toml and YAML with yaml.v3, and merged into viper as plain maps so both
// formats behave identically, including @include handling.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	if err := loader.BindFlags(cmd.Flags()); err != nil {
//	    return err
//	}
//	cfg, err := loader.Load("lspsync.toml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Server.Command)
//
// # Live Reload
//
// Watch reloads the file whenever it is written and hands the new Config
// to a callback:
//
//	w, err := config.Watch(loader, path, func(cfg *config.Config, err error) {
//	    if err == nil {
//	        level.SetLevel(cfg.Log.ZapLevel())
//	    }
//	}, logger)
//	defer w.Close()
package config
