package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openmuni/cividex/configs"
	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the user and corpus configuration files.

User configuration contains machine-specific settings that apply to
every corpus on this machine, such as the server address and logging
level. Corpus configuration (.cividex.yaml) lives at the corpus root
and is meant to be version-controlled alongside the records.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/cividex/config.yaml)
  3. Corpus config (.cividex.yaml)
  4. Environment variables (CIVIDEX_*)`,
		Example: `  # Create user config from template
  cividex config init

  # Create corpus config at the corpus root
  cividex config init --corpus

  # Show effective configuration (merged from all sources)
  cividex config show

  # Print user config file path
  cividex config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	var corpus bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from a template",
		Long: `Create a configuration file from a template.

By default the user configuration is created at
~/.config/cividex/config.yaml (or under $XDG_CONFIG_HOME if set).

With --corpus, a .cividex.yaml is created at the corpus root instead,
with include/exclude globs and the index backend.`,
		Example: `  # Create user config
  cividex config init

  # Create .cividex.yaml in the current corpus
  cividex config init --corpus

  # Overwrite an existing config (a backup is kept)
  cividex config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if corpus {
				return runConfigInitCorpus(cmd, force)
			}
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&corpus, "corpus", false, "Create the corpus config instead of the user config")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the effective configuration after merging all sources.

By default, shows the merged configuration from:
  1. Hardcoded defaults
  2. User config (~/.config/cividex/config.yaml)
  3. Corpus config (.cividex.yaml)
  4. Environment variables`,
		Example: `  # Show merged configuration
  cividex config show

  # Show as JSON
  cividex config show --json

  # Show only user config
  cividex config show --source user`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, corpus, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		Long:  `Print the path to the user configuration file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	configPath := config.GetUserConfigPath()
	configDir := config.GetUserConfigDir()

	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Statusf("📁", "Location: %s", configPath)
			out.Newline()
			out.Status("💡", "Use --force to replace it (a backup is kept)")
			return nil
		}

		backupPath, err := config.BackupUserConfig()
		if err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
		out.Statusf("💾", "Backup: %s", backupPath)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	if err := os.WriteFile(configPath, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created user configuration")
	out.Statusf("📁", "Location: %s", configPath)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Edit the file to customize settings")
	out.Status("", "  2. Run 'cividex config show' to verify")

	return nil
}

func runConfigInitCorpus(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	root, err := config.FindCorpusRoot(cwd)
	if err != nil {
		root = cwd
	}

	configPath := filepath.Join(root, ".cividex.yaml")
	if fileExists(configPath) && !force {
		out.Warning("Corpus configuration already exists")
		out.Statusf("📁", "Location: %s", configPath)
		out.Newline()
		out.Status("💡", "Use --force to overwrite it")
		return nil
	}

	if err := os.WriteFile(configPath, []byte(configs.CorpusConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created corpus configuration")
	out.Statusf("📁", "Location: %s", configPath)
	out.Newline()
	out.Status("💡", "Commit this file alongside your records")

	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var cfg *config.Config
	var sourceDesc string

	switch source {
	case "merged":
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		root, err := config.FindCorpusRoot(cwd)
		if err != nil {
			root = cwd
		}

		cfg, err = config.Load(root)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		sourceDesc = "merged (defaults + user + corpus + env)"

	case "user":
		configPath := config.GetUserConfigPath()
		if !config.UserConfigExists() {
			out.Warning("No user configuration file found")
			out.Statusf("📁", "Expected at: %s", configPath)
			out.Status("💡", "Run 'cividex config init' to create one")
			return nil
		}

		cfg = config.NewConfig()
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to read user config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse user config: %w", err)
		}
		sourceDesc = fmt.Sprintf("user (%s)", configPath)

	case "corpus":
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		root, err := config.FindCorpusRoot(cwd)
		if err != nil {
			root = cwd
		}

		yamlPath := filepath.Join(root, ".cividex.yaml")
		ymlPath := filepath.Join(root, ".cividex.yml")

		var configPath string
		if fileExists(yamlPath) {
			configPath = yamlPath
		} else if fileExists(ymlPath) {
			configPath = ymlPath
		} else {
			out.Warning("No corpus configuration file found")
			out.Statusf("📁", "Expected at: %s", yamlPath)
			out.Status("💡", "Run 'cividex config init --corpus' to create one")
			return nil
		}

		cfg = config.NewConfig()
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to read corpus config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse corpus config: %w", err)
		}
		sourceDesc = fmt.Sprintf("corpus (%s)", configPath)

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (hardcoded)"

	default:
		return fmt.Errorf("invalid source: %s (use: merged, user, corpus, defaults)", source)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		out.Statusf("📋", "Configuration source: %s", sourceDesc)
		out.Newline()

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}

	return nil
}
