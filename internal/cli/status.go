package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ppiankov/tagreveal/internal/ledger"
	"github.com/ppiankov/tagreveal/internal/model"
	"github.com/ppiankov/tagreveal/internal/render"
	"github.com/ppiankov/tagreveal/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	statusFrom    string
	statusAll     bool
	statusTimeout time.Duration
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [item-id...]",
	Short: "Show claim status of ledger items",
	Long: `Status looks up items in the SQLite ledger and shows whether each one
has been claimed, and by whom.

Example:
  tagreveal status 1 2 3
  tagreveal status --from ids.txt
  tagreveal status --all`,
	RunE: runStatus,
}

var statusKeys = map[string]string{
	"ledger.path": "db",
}

func init() {
	rootCmd.AddCommand(statusCmd)
	defaults := model.DefaultConfig()

	flags := statusCmd.Flags()
	flags.StringVar(&statusFrom, "from", "", "file with one item id per line")
	flags.BoolVar(&statusAll, "all", false, "list every item in the ledger")
	flags.DurationVar(&statusTimeout, "timeout", 30*time.Second, "overall lookup timeout")
	flags.String("db", defaults.Ledger.Path, "SQLite ledger path")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, statusKeys); err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	db, err := openSQLite(cfg.Ledger, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	out := cmd.OutOrStdout()
	if statusAll {
		items, err := db.Items(ctx)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		for _, item := range items {
			fmt.Fprintln(out, describeItem(item))
		}
		return nil
	}

	raw := args
	if statusFrom != "" {
		lines, err := worker.ReadLines(statusFrom)
		if err != nil {
			return err
		}
		raw = append(raw, lines...)
	}
	if len(raw) == 0 {
		return fmt.Errorf("no item ids given (pass ids, --from or --all)")
	}

	ids := make([]uint64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id %q", s)
		}
		ids = append(ids, id)
	}

	cached := ledger.NewCached(db, cfg.Ledger.StatusCacheTTL)
	results := worker.Batch(ctx, 4, ids, cached.StatusOf)

	missing := 0
	for _, r := range results {
		if r.Err != nil {
			missing++
			fmt.Fprintf(out, "#%d: %v\n", ids[r.Index], r.Err)
			continue
		}
		fmt.Fprintf(out, "#%d: %s\n", ids[r.Index], render.DescribeClaim(r.Value))
	}
	if missing > 0 {
		return fmt.Errorf("%d item(s) could not be looked up", missing)
	}
	return nil
}

func describeItem(item model.Item) string {
	owner := "unclaimed"
	if item.Claimed {
		owner = "claimed by " + item.Owner
	}
	return fmt.Sprintf("#%d %-20s %-9s %-8s %s", item.ID, item.Name, item.Rarity, item.Kind, owner)
}
