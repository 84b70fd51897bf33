package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platformplatform/developer-cli/internal/config"
	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: GroupSetup,
	Short:   "Show or change pp settings",
	Long: `Settings come from command flags, PP_* environment variables,
.pp/config.yaml in the workspace, ~/.config/pp/config.yaml, then defaults.
'pp config set' writes the workspace file.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of a setting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		if jsonOutput {
			outputJSON(map[string]interface{}{"key": key, "value": configValue(key)})
			return
		}
		fmt.Println(configValue(key))
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting in .pp/config.yaml",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, value := args[0], args[1]
		if !knownKey(key) {
			WarnError("%s is not a known setting", key)
		}
		path, err := config.SetProjectValue(mustWorkspace().Root, key, value)
		if err != nil {
			FatalError("%v", err)
		}
		debug.LogEvent("CONFIG_SET", "config set", key)
		if jsonOutput {
			outputJSON(map[string]string{"key": key, "value": value, "file": path})
			return
		}
		debug.PrintNormal("%s Set %s = %s in %s\n", ui.RenderPassIcon(), key, value, ws.Rel(path))
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known setting with its effective value",
	Run: func(cmd *cobra.Command, args []string) {
		keys := config.KnownKeys()
		if jsonOutput {
			out := make(map[string]interface{}, len(keys))
			for _, k := range keys {
				out[k] = configValue(k)
			}
			outputJSON(out)
			return
		}
		project, err := config.LoadProjectFile(mustWorkspace().Root)
		if err != nil {
			WarnError("%v", err)
		}
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			source := "default"
			switch {
			case os.Getenv(config.EnvName(k)) != "":
				source = "env"
			case lookupKey(project, k) != nil:
				source = "workspace"
			case config.IsSet(k):
				source = "user"
			}
			rows = append(rows, []string{k, formatConfigValue(configValue(k)), source, config.EnvName(k)})
		}
		fmt.Println(ui.RenderTable([]string{"Key", "Value", "Source", "Environment"}, rows))
		if f := config.ConfigFileUsed(); f != "" {
			debug.PrintNormal("%s\n", ui.RenderMuted("config file: "+f))
		}
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}

// configValue resolves through viper, so nested keys from files work too.
func configValue(key string) interface{} {
	if v := lookupKey(config.AllSettings(), key); v != nil {
		return v
	}
	return config.GetString(key)
}

// lookupKey walks a dotted key through nested maps.
func lookupKey(settings map[string]interface{}, key string) interface{} {
	var cur interface{} = settings
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		if cur, ok = m[part]; !ok {
			return nil
		}
	}
	return cur
}

func formatConfigValue(v interface{}) string {
	switch t := v.(type) {
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(t, ",")
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "{" + strings.Join(keys, ",") + "}"
	}
	return fmt.Sprint(v)
}

func knownKey(key string) bool {
	for _, k := range config.KnownKeys() {
		if k == key {
			return true
		}
	}
	return false
}
