package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/tagreveal/internal/ledger"
	"github.com/ppiankov/tagreveal/internal/model"
	"github.com/ppiankov/tagreveal/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	mintSeed        model.SeedItem
	mintFrom        string
	mintConcurrency int
	mintTimeout     time.Duration
)

// mintCmd represents the mint command
var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Create items in the SQLite ledger (owner only)",
	Long: `Mint creates collectible items and prints the claim hash to write onto
each tag. Only the configured ledger owner may mint.

Example:
  tagreveal mint --name "Ember Fox" --rarity rare --kind fire --address 0x...
  tagreveal mint --from items.yaml --concurrency 4`,
	Args: cobra.NoArgs,
	RunE: runMint,
}

var mintKeys = map[string]string{
	"ledger.path":  "db",
	"ledger.owner": "owner",
	"auth.address": "address",
}

func init() {
	rootCmd.AddCommand(mintCmd)
	defaults := model.DefaultConfig()

	flags := mintCmd.Flags()
	flags.StringVar(&mintSeed.Name, "name", "", "item name")
	flags.StringVar(&mintSeed.Rarity, "rarity", "common", "rarity (common, uncommon, rare, epic, legendary)")
	flags.StringVar(&mintSeed.Kind, "kind", "normal", "kind (fire, water, grass, electric, psychic, normal)")
	flags.StringVar(&mintSeed.Behavior, "behavior", "", "flavor text")
	flags.StringVar(&mintSeed.URI, "uri", "", "model or metadata URI")
	flags.StringVar(&mintFrom, "from", "", "YAML file with a list of items to mint")
	flags.IntVar(&mintConcurrency, "concurrency", 4, "parallel mints for --from")
	flags.DurationVar(&mintTimeout, "timeout", time.Minute, "overall mint timeout")

	flags.String("db", defaults.Ledger.Path, "SQLite ledger path")
	flags.String("owner", "", "ledger owner address")
	flags.String("address", "", "identity granted by the static auth provider")
}

func runMint(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, mintKeys); err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), mintTimeout)
	defer cancel()

	seeds := []model.SeedItem{mintSeed}
	if mintFrom != "" {
		if seeds, err = readSeeds(mintFrom); err != nil {
			return err
		}
	}

	minter, err := connectOwner(ctx, cfg, logger)
	if err != nil {
		return err
	}

	db, err := openSQLite(cfg.Ledger, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if verbose {
		fmt.Fprintf(os.Stderr, "Minting %d item(s) into %s as %s\n", len(seeds), cfg.Ledger.Path, minter)
	}

	results := worker.Batch(ctx, mintConcurrency, seeds, func(ctx context.Context, seed model.SeedItem) (minted, error) {
		return mintOne(ctx, db, seed, minter)
	})

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s: %v\n", seeds[r.Index].Name, r.Err)
			continue
		}
		fmt.Fprintf(out, "✓ #%d %-20s %-9s %-8s %s\n",
			r.Value.item.ID, r.Value.item.Name, r.Value.item.Rarity, r.Value.item.Kind, r.Value.token)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d mint(s) failed", failed, len(seeds))
	}
	return nil
}

type minted struct {
	item  model.Item
	token model.ClaimToken
}

func mintOne(ctx context.Context, db *ledger.SQLite, seed model.SeedItem, minter model.Identity) (minted, error) {
	item, err := seed.Item()
	if err != nil {
		return minted{}, err
	}
	item, token, err := db.Mint(ctx, item, minter)
	if err != nil {
		return minted{}, err
	}
	return minted{item: item, token: token}, nil
}

// readSeeds loads a YAML list of items
func readSeeds(path string) ([]model.SeedItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	var seeds []model.SeedItem
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse items: %w", err)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no items in %s", path)
	}
	return seeds, nil
}
