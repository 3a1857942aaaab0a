package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bermanqa/qlog/internal/config"
	"github.com/bermanqa/qlog/internal/output"
)

// secretKeys are masked by `config list` and `config get`.
var secretKeys = map[string]bool{
	"ai.api_key":     true,
	"webhook.secret": true,
}

func maskSecret(key, value string) string {
	if !secretKeys[key] || value == "" {
		return value
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "…" + value[len(value)-4:]
}

func resolvedViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	if err := config.Read(v, configPath); err != nil {
		return nil, err
	}
	return v, nil
}

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Show and change settings",
	GroupID: "system",
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show every setting and its effective value",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := resolvedViper(cmd)
		if err != nil {
			return err
		}
		if f := v.ConfigFileUsed(); f != "" {
			fmt.Println(output.Subtle("# " + f))
		}
		for _, key := range config.Keys() {
			fmt.Printf("%s = %s\n", key, maskSecret(key, v.GetString(key)))
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		if !config.IsKey(key) {
			return fmt.Errorf("unknown config key %q (see 'qlog config list')", args[0])
		}
		v, err := resolvedViper(cmd)
		if err != nil {
			return err
		}
		value := v.GetString(key)
		if show, _ := cmd.Flags().GetBool("show-secret"); !show {
			value = maskSecret(key, value)
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Store one setting in the config file",
	Example: "  qlog config set remote.url https://kv.example.com\n  qlog config set sync.interval 5m",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		path, err := config.Set(configPath, key, args[1])
		if err != nil {
			return err
		}
		output.Success("%s = %s (%s)", key, maskSecret(key, args[1]), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().Bool("show-secret", false, "print secrets unmasked")
}
