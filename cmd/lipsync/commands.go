package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/lexiqai/avatar-gateway/internal/asset"
	"github.com/lexiqai/avatar-gateway/internal/config"
	"github.com/lexiqai/avatar-gateway/internal/expression"
	"github.com/lexiqai/avatar-gateway/internal/llm"
	"github.com/lexiqai/avatar-gateway/internal/lipsync"
	"github.com/lexiqai/avatar-gateway/internal/observability"
	"github.com/lexiqai/avatar-gateway/internal/pipeline"
	"github.com/lexiqai/avatar-gateway/internal/rpc"
)

var (
	lexiconPath string
	logLevel    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lipsync",
		Short:         "Inspect avatar expressions, lip-sync sequences and assets",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observability.SetLoggerOutput(cmd.ErrOrStderr(), logLevel, true)
		},
	}

	root.PersistentFlags().StringVar(&lexiconPath, "lexicon", "", "YAML file overriding the built-in angry word list")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(analyzeCmd())
	root.AddCommand(sampleCmd())
	root.AddCommand(assetCmd())
	root.AddCommand(inventoryCmd())
	root.AddCommand(chatCmd())

	return root
}

func loadAnalyzer() (*pipeline.Analyzer, error) {
	if lexiconPath == "" {
		return pipeline.NewAnalyzer(nil), nil
	}
	lexicon, err := expression.LoadLexicon(lexiconPath)
	if err != nil {
		return nil, err
	}
	return pipeline.NewAnalyzer(lexicon), nil
}

func analyzeCmd() *cobra.Command {
	var (
		durationMs float64
		remote     string
	)

	cmd := &cobra.Command{
		Use:   "analyze TEXT...",
		Short: "Print the expression, duration and lip-sync sequence for text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			if remote != "" {
				var duration *float64
				if cmd.Flags().Changed("duration") {
					duration = &durationMs
				}
				return analyzeRemote(cmd, remote, text, duration)
			}

			analyzer, err := loadAnalyzer()
			if err != nil {
				return err
			}

			var analysis pipeline.Analysis
			if cmd.Flags().Changed("duration") {
				analysis = analyzer.AnalyzeFor(text, durationMs)
			} else {
				analysis = analyzer.Analyze(text)
			}
			return writeJSON(cmd.OutOrStdout(), analysis)
		},
	}

	cmd.Flags().Float64Var(&durationMs, "duration", 0, "speaking duration in ms (default: estimated from word count)")
	cmd.Flags().StringVar(&remote, "remote", "", "analyze on a running gateway's gRPC address instead of locally")
	return cmd
}

func analyzeRemote(cmd *cobra.Command, target, text string, durationMs *float64) error {
	client, err := rpc.Dial(target)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	resp, err := client.Analyze(ctx, text, durationMs)
	if err != nil {
		return fmt.Errorf("remote analyze: %w", err)
	}

	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func sampleCmd() *cobra.Command {
	var (
		durationMs float64
		stepMs     float64
	)

	cmd := &cobra.Command{
		Use:   "sample TEXT...",
		Short: "Print the mouth shape at regular points in time",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stepMs <= 0 {
				return fmt.Errorf("--step must be positive")
			}

			text := strings.Join(args, " ")
			total := lipsync.EstimateSpeakingDuration(text)
			if cmd.Flags().Changed("duration") {
				total = durationMs
			}
			seq := lipsync.Generate(text, total)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME_MS\tSHAPE")
			for t := 0.0; t < total; t += stepMs {
				fmt.Fprintf(w, "%.0f\t%s\n", t, seq.ShapeAt(t))
			}
			fmt.Fprintf(w, "%.0f\t%s\n", total, seq.ShapeAt(total))
			return w.Flush()
		},
	}

	cmd.Flags().Float64Var(&durationMs, "duration", 0, "speaking duration in ms (default: estimated from word count)")
	cmd.Flags().Float64Var(&stepMs, "step", 50, "sampling interval in ms")
	return cmd
}

func assetCmd() *cobra.Command {
	var (
		expr, eye, mouth, base string
	)

	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Resolve an avatar state to its image path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, es, m, err := asset.ParseState(expr, eye, mouth)
			if err != nil {
				return err
			}

			r := asset.NewResolver(base)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:        %s\n", r.Path(e, es, m))
			fmt.Fprintf(out, "fallback:    %s\n", r.FallbackPath(e, es, m))
			fmt.Fprintf(out, "last resort: %s\n", r.LastResort())
			fmt.Fprintf(out, "valid:       %t\n", asset.IsValid(e, es, m))
			return nil
		},
	}

	cmd.Flags().StringVar(&expr, "expression", "happy", "happy or angry")
	cmd.Flags().StringVar(&eye, "eye", "open", "open or close")
	cmd.Flags().StringVar(&mouth, "mouth", "close", "A, E, I, O, U or close")
	cmd.Flags().StringVar(&base, "base", asset.DefaultBase, "URL prefix of the images")
	return cmd
}

func inventoryCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List the image files the avatar needs, optionally checking a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if dir == "" {
				for _, name := range asset.Inventory() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			missing, err := asset.VerifyDir(dir)
			if err != nil {
				return err
			}
			for _, name := range missing {
				fmt.Fprintf(out, "missing: %s\n", name)
			}
			if len(missing) > 0 {
				return fmt.Errorf("%d of %d images missing in %s", len(missing), len(asset.Inventory()), dir)
			}
			fmt.Fprintf(out, "all %d images present in %s\n", len(asset.Inventory()), dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory to check for every image")
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat MESSAGE...",
		Short: "Stream a backend reply and show the avatar expression for the message",
		Long: `Sends MESSAGE to the configured Ollama backend (OLLAMA_URL, OLLAMA_MODEL)
and streams the reply to stdout. The expression the avatar would show is
printed first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			analyzer, err := loadAnalyzer()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, cfg.BackendTimeoutDuration())
			defer cancel()

			message := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[%s]\n", analyzer.Classify(message))

			return streamReply(ctx, llm.NewOllamaClient(cfg), message, out)
		},
	}
}

func streamReply(ctx context.Context, streamer llm.Streamer, message string, out io.Writer) error {
	chunks, err := streamer.Generate(ctx, message)
	if err != nil {
		return err
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			return chunk.Err
		}
		fmt.Fprint(out, chunk.Text)
	}
	fmt.Fprintln(out)
	return ctx.Err()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
