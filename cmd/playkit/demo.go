package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/appodealstack/playkit"
	"github.com/appodealstack/playkit/internal/logging"
	"github.com/appodealstack/playkit/sandbox"
)

var (
	demoSetupFailures int
	demoTimeout       time.Duration
	demoVerbose       bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a purchase scenario against the in-memory billing sandbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := zerolog.Nop()
		if demoVerbose {
			logger = logging.New(logging.Config{Format: "console", Level: "debug", Component: "demo"}, cmd.ErrOrStderr())
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), demoTimeout)
		defer cancel()
		return runDemo(ctx, cmd.OutOrStdout(), logger, demoSetupFailures)
	},
}

func init() {
	demoCmd.Flags().IntVar(&demoSetupFailures, "setup-failures", 0, "connection attempts that fail before setup succeeds")
	demoCmd.Flags().DurationVar(&demoTimeout, "timeout", time.Minute, "give up after this long")
	demoCmd.Flags().BoolVarP(&demoVerbose, "verbose", "v", false, "log billing events to stderr")
}

// runDemo buys coins through a launched flow, receives a subscription bought
// elsewhere, and reports what the manager did with each.
func runDemo(ctx context.Context, out io.Writer, logger zerolog.Logger, setupFailures int) error {
	client := sandbox.New(
		sandbox.WithProducts(sandbox.DefaultProducts()...),
		sandbox.WithSetupFailures(setupFailures),
	)
	manager, err := playkit.NewManager(ctx, client, playkit.WithLogger(logger))
	if err != nil {
		return err
	}
	defer manager.Shutdown()

	id, updates, _ := manager.Purchases().Subscribe()
	defer manager.Purchases().Unsubscribe(id)

	if err := manager.Start(); err != nil {
		return err
	}
	if err := waitFor(ctx, func() bool {
		for _, p := range manager.Catalog().Products() {
			if _, err := manager.ProductDetails(ctx, p.ID); err != nil {
				return false
			}
		}
		return manager.Ready()
	}); err != nil {
		return fmt.Errorf("billing setup: %w", err)
	}
	fmt.Fprintf(out, "connected after %d attempt(s)\n", client.Connects())

	for _, p := range manager.Catalog().Products() {
		d, err := manager.ProductDetails(ctx, p.ID)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "product %s (%s): %s %s\n", d.ProductID, d.Type, d.Title, d.FormattedPrice)
	}

	if err := manager.LaunchPurchaseFlow(ctx, nil, playkit.SKUCoins); err != nil {
		return err
	}
	coins, err := nextUpdate(ctx, updates)
	if err != nil {
		return err
	}
	sub := client.Deliver(playkit.SKUInfiniteAccessMonthly)
	if _, err := nextUpdate(ctx, updates); err != nil {
		return err
	}

	if err := waitFor(ctx, func() bool {
		return client.ConsumeCalls(coins.Token) > 0 && client.AcknowledgeCalls(sub.Token) > 0
	}); err != nil {
		return fmt.Errorf("waiting for purchase processing: %w", err)
	}

	fmt.Fprintf(out, "purchase %s: consumed\n", playkit.SKUCoins)
	fmt.Fprintf(out, "purchase %s: acknowledged\n", playkit.SKUInfiniteAccessMonthly)
	fmt.Fprintf(out, "owned purchases: %d\n", len(client.Owned()))
	return nil
}

func nextUpdate(ctx context.Context, updates <-chan []playkit.Purchase) (playkit.Purchase, error) {
	select {
	case purchases := <-updates:
		if len(purchases) == 0 {
			return playkit.Purchase{}, errors.New("purchase update without purchases")
		}
		return purchases[0], nil
	case <-ctx.Done():
		return playkit.Purchase{}, ctx.Err()
	}
}

func waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
