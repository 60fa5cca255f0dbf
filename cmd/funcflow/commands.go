package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goatkit/funcflow/internal/config"
	"github.com/goatkit/funcflow/internal/execlog"
	"github.com/goatkit/funcflow/internal/gateway"
	"github.com/goatkit/funcflow/internal/registry"
)

func newListCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all loaded functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := newCore(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer c.close()

			reg := c.store.Current()
			fmt.Printf("Functions: %d (epoch %d, built %s)\n\n",
				reg.Len(), reg.Epoch(), reg.BuiltAt().Format("2006-01-02 15:04:05"))
			for _, desc := range reg.Descriptors() {
				fmt.Printf("  %s%s\n", desc.Name, desc.Signature())
				if desc.Summary != "" {
					fmt.Printf("      %s\n", desc.Summary)
				}
			}
			return nil
		},
	}
}

func newInfoCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "info <function>",
		Short: "Show full metadata for one function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := newCore(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer c.close()

			desc, ok := c.store.Current().Lookup(args[0])
			if !ok {
				return &registry.ResolutionError{Name: args[0]}
			}
			out, err := json.MarshalIndent(desc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newRunCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run <function> [key=value ...]",
		Short: "Execute a function directly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := newCore(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer c.close()

			gwArgs := make([]gateway.Arg, 0, len(args)-1)
			for _, raw := range args[1:] {
				if key, value, found := strings.Cut(raw, "="); found {
					gwArgs = append(gwArgs, gateway.Arg{Name: key, Value: value})
				} else {
					gwArgs = append(gwArgs, gateway.Arg{Value: raw})
				}
			}

			result, err := c.gateway.Do(cmd.Context(), gateway.Request{
				Name:   args[0],
				Args:   gwArgs,
				Origin: execlog.OriginManual,
			})
			if err != nil {
				return err
			}
			out, jsonErr := json.Marshal(result)
			if jsonErr != nil {
				fmt.Printf("%v\n", result)
				return nil
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newProcessCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	var question string
	cmd := &cobra.Command{
		Use:   "process [text]",
		Short: "Run tag parsing and auto-detection over text (stdin if omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := newCore(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer c.close()

			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			processed, outputs := c.pipeline.Process(cmd.Context(), text, question)
			fmt.Println(processed)
			if len(outputs) > 0 {
				out, err := json.MarshalIndent(outputs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, string(out))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "user question for auto-detection")
	return cmd
}

func newLogCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent execution records, newest last",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := execlog.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, rec := range records {
				line, err := json.Marshal(rec)
				if err != nil {
					continue
				}
				fmt.Println(string(line))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum records to show")
	return cmd
}
