package cmd

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/govai/internal/ai"
	cfgpkg "github.com/KaramelBytes/govai/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set govai configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		shown := *cfg
		shown.APIKey = mask(shown.APIKey)
		out, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Example: `  govai config set provider anthropic
  govai config set similarity_threshold 90
  govai config set regenerate_on_malformed false`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := setConfigValue(c, args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			dir, err := cfgpkg.Dir()
			if err != nil {
				return err
			}
			path = filepath.Join(dir, "config.yaml")
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

// setConfigValue assigns val to the yaml key of c, parsed by the type the
// key currently holds, and validates the result.
func setConfigValue(c *cfgpkg.Global, key, val string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	fields := map[string]any{}
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return err
	}
	cur, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown key: %s", key)
	}
	switch cur.(type) {
	case int, float64:
		if i, err := strconv.Atoi(val); err == nil {
			fields[key] = i
		} else if f, err := strconv.ParseFloat(val, 64); err == nil {
			fields[key] = f
		} else {
			return fmt.Errorf("invalid number for %s: %v", key, val)
		}
	case bool:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for %s: %v", key, val)
		}
		fields[key] = b
	default:
		fields[key] = val
	}
	if key == "provider" {
		p := strings.ToLower(val)
		if !slices.Contains(ai.Providers, p) {
			return fmt.Errorf("invalid provider: %s (use %s)", val, strings.Join(ai.Providers, ", "))
		}
		fields[key] = p
	}
	if raw, err = yaml.Marshal(fields); err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return c.Validate()
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
