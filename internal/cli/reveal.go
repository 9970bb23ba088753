package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/ppiankov/tagreveal/internal/auth"
	"github.com/ppiankov/tagreveal/internal/model"
	"github.com/ppiankov/tagreveal/internal/orchestrator"
	"github.com/ppiankov/tagreveal/internal/render"
	"github.com/ppiankov/tagreveal/internal/telemetry"
	"github.com/ppiankov/tagreveal/internal/timeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	inputPath string
	openHash  string
	retries   int
)

// revealCmd represents the reveal command
var revealCmd = &cobra.Command{
	Use:   "reveal",
	Short: "Scan a tag, claim its item and play the reveal",
	Long: `Reveal listens for tag reads, extracts the claim hash, authorizes the
holder, submits the claim and plays the reveal once the ledger confirms.

Tag reads come from a line-oriented input (a file or stdin), one per line:
  text:0xc0ffee        a tag holding one text record
  hex:d10101...        raw NDEF message bytes
  empty                a tag with no records
  error:<message>      a reader failure
  0xc0ffee             shorthand for text:

Example:
  echo 0xc0ffee | tagreveal reveal
  tagreveal reveal --input taps.txt --ledger sqlite --db items.db
  tagreveal reveal --hash 0xc0ffee --json report.json`,
	Args: cobra.NoArgs,
	RunE: runReveal,
}

func init() {
	rootCmd.AddCommand(revealCmd)
	defaults := model.DefaultConfig()

	flags := revealCmd.Flags()
	flags.StringVar(&inputPath, "input", "-", "tag read script (- for stdin)")
	flags.StringVar(&openHash, "hash", "", "skip scanning and open this claim hash directly")
	flags.IntVar(&retries, "retries", 0, "times to retry a failed authorization")

	flags.String("ledger", defaults.Ledger.Driver, "ledger driver (memory, sqlite)")
	flags.String("db", defaults.Ledger.Path, "SQLite ledger path")
	flags.String("address", "", "identity granted by the static auth provider")
	flags.String("token", "", "signed access token for the token auth provider")
	flags.Int("fps", defaults.Timeline.FramesPerSecond, "frame rate of the reveal loop")
	flags.Duration("claim-timeout", defaults.Ledger.ClaimTimeout, "reject claims pending longer than this (0 disables)")
	flags.String("json", "", "write the flow report to this path (.json or .yaml)")
	flags.Int("pose-every", 0, "print the pose every N frames")
}

var revealKeys = map[string]string{
	"ledger.driver":              "ledger",
	"ledger.path":                "db",
	"auth.address":               "address",
	"auth.token":                 "token",
	"timeline.frames_per_second": "fps",
	"ledger.claim_timeout":       "claim-timeout",
	"output.report_path":         "json",
	"output.pose_every":          "pose-every",
}

func runReveal(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, revealKeys); err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "tagreveal")
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	provider, err := buildProvider(cfg.Auth)
	if err != nil {
		return err
	}
	session := auth.NewSession(provider, cfg.Auth.PromptTimeout, logger)

	client, closeLedger, err := buildLedger(cfg.Ledger, session, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeLedger() }()

	tagReader, closeInput, err := buildReader(inputPath, cfg.Reader)
	if err != nil {
		return err
	}
	defer func() { _ = closeInput() }()

	out := cmd.OutOrStdout()
	renderer := render.NewRenderer(out, cfg.Output.Verbose, cfg.Output.PoseEvery)

	orch, err := orchestrator.New(orchestrator.Deps{
		Reader:     tagReader,
		Authorizer: session,
		Ledger:     client,
	}, orchestrator.Options{
		ClaimTimeout: cfg.Ledger.ClaimTimeout,
		Timeline:     durations(cfg.Timeline),
		Logger:       logger,
		OnTransition: func(tr orchestrator.Transition) {
			errText := ""
			if tr.Err != nil {
				errText = tr.Err.Error()
			}
			renderer.RenderTransition(string(tr.From), string(tr.To), errText)
		},
	})
	if err != nil {
		return err
	}

	if openHash != "" {
		err = orch.Open(url.Values{"hash": {openHash}}.Encode())
	} else {
		err = orch.Start()
	}
	if err != nil {
		return err
	}

	report := play(ctx, orch, renderer, cfg.Timeline.FramesPerSecond, retries)
	renderer.RenderSummary(report)

	if path := cfg.Output.ReportPath; path != "" {
		if err := renderer.RenderReport(report, path); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		if cfg.Output.Verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote report: %s\n", path)
		}
	}

	if !report.Succeeded() {
		if report.ErrorKind != "" {
			return fmt.Errorf("reveal did not complete: %s", report.ErrorKind)
		}
		return errors.New("reveal did not complete")
	}
	return nil
}

// play drives the orchestrator at a fixed frame rate until the flow ends.
// A failed reveal keeps playing until its sink animation finishes.
func play(ctx context.Context, orch *orchestrator.Orchestrator, renderer *render.Renderer, fps, retries int) *model.Report {
	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			report := orch.Report()
			orch.Stop()
			return report
		case <-orch.Wake():
		case <-ticker.C:
		}

		frame := orch.Tick(time.Now())
		renderer.RenderFrame(frame)

		switch orch.State() {
		case orchestrator.StateDone:
			// the frame that entered settled was evaluated before the switch
			renderer.RenderFrame(orch.Tick(time.Now()))
			return orch.Report()
		case orchestrator.StateError:
			if fe := orch.LastError(); fe != nil && fe.Retriable() && retries > 0 {
				retries--
				if err := orch.Retry(); err == nil {
					continue
				}
			}
			if frame.Stage == timeline.Failed && !frame.Exited {
				continue
			}
			return orch.Report()
		case orchestrator.StateIdle:
			return orch.Report()
		}
	}
}
