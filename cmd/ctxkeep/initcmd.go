package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/ctxkeep/ctxkeep/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// initCmd interactively writes a starter configuration file.
func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")
			if target == "" {
				target = defaultConfigTarget()
			}

			if !force {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", target)
				}
			}

			answers := initAnswers{
				model:   "claude",
				backend: config.JournalBackendMemory,
				janitor: true,
			}
			if err := runInitForm(&answers); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}

			cfg := answers.toConfig()
			if err := config.Validate(&cfg); err != nil {
				return err
			}

			if err := writeConfigFile(target, &cfg); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", target)
			if !cfg.Gateway.Auth.Configured() {
				fmt.Println("No credentials configured: only /health, /metrics, and webhook ingestion will be served.")
			}
			fmt.Printf("Start with: ctxkeep start --config %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Where to write the file (default: XDG config dir)")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

type initAnswers struct {
	model   string
	bind    string
	bearer  string
	backend string
	janitor bool
}

func runInitForm(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default model profile").
				Description("Sets the token budget for new sessions.").
				Options(
					huh.NewOption("claude (200k tokens)", "claude"),
					huh.NewOption("gpt-4 (128k tokens)", "gpt-4"),
					huh.NewOption("gpt-3.5 (16k tokens)", "gpt-3.5"),
					huh.NewOption("gemini (1M tokens)", "gemini"),
					huh.NewOption("llama (8k tokens)", "llama"),
					huh.NewOption("default (128k tokens)", "default"),
				).
				Value(&a.model),
			huh.NewInput().
				Title("Listen address").
				Placeholder("127.0.0.1:8147").
				Validate(validateBind).
				Value(&a.bind),
			huh.NewInput().
				Title("Bearer token").
				Description("Protects /api and /ws/chat. Leave empty to serve only health checks and webhooks.").
				EchoMode(huh.EchoModePassword).
				Value(&a.bearer),
			huh.NewSelect[string]().
				Title("Journal backend").
				Description("Where prune and compaction history is recorded.").
				Options(
					huh.NewOption("memory (lost on restart)", config.JournalBackendMemory),
					huh.NewOption("sqlite (survives restarts)", config.JournalBackendSQLite),
				).
				Value(&a.backend),
			huh.NewConfirm().
				Title("Enable background maintenance?").
				Description("Compacts sessions over their high-water mark and expires idle ones.").
				Value(&a.janitor),
		),
	)
	return form.Run()
}

func validateBind(s string) error {
	if s == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return errors.New("expected host:port")
	}
	return nil
}

func (a *initAnswers) toConfig() config.Config {
	cfg := config.Config{
		Version: "1",
		Window:  config.WindowConfig{Model: a.model},
		Gateway: config.GatewayConfig{
			Bind: a.bind,
			Auth: config.AuthConfig{BearerToken: a.bearer},
		},
		Journal: config.JournalConfig{Backend: a.backend},
	}
	if !a.janitor {
		off := false
		cfg.Janitor.Enabled = &off
	}
	return cfg
}

// writeConfigFile marshals cfg and writes it with owner-only permissions,
// since the file may hold a bearer token.
func writeConfigFile(path string, cfg *config.Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	header := "# ctxkeep configuration. Validate edits with: ctxkeep config check <path>\n"
	return os.WriteFile(path, append([]byte(header), out...), 0o600)
}

func defaultConfigTarget() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		return filepath.Join(xdg, "ctxkeep", "ctxkeep.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "ctxkeep", "ctxkeep.yaml")
	}
	return "ctxkeep.yaml"
}
