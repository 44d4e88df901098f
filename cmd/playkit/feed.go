package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/appodealstack/playkit/feed"
	"github.com/appodealstack/playkit/internal/config"
)

var (
	feedSize   int
	feedStride int
	feedAds    int
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print a data list with native ad placeholders inserted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		size, stride := cfg.FeedSize, cfg.FeedStride
		if cmd.Flags().Changed("size") {
			size = feedSize
		}
		if cmd.Flags().Changed("stride") {
			stride = feedStride
		}
		return printFeed(cmd.OutOrStdout(), size, stride, feedAds)
	},
}

func init() {
	feedCmd.Flags().IntVar(&feedSize, "size", feed.DefaultDataSize, "number of data items")
	feedCmd.Flags().IntVar(&feedStride, "stride", feed.DefaultStride, "insert an ad slot before every stride-th item")
	feedCmd.Flags().IntVar(&feedAds, "ads", 10, "ads available in the pool; later slots stay empty")
}

func printFeed(out io.Writer, size, stride, ads int) error {
	if size < 0 {
		return fmt.Errorf("size must not be negative")
	}
	pool := feed.NewPool()
	for i := 0; i < ads; i++ {
		pool.Load(feed.NativeAd{
			ID:           fmt.Sprintf("ad-%d", i),
			Title:        fmt.Sprintf("Sponsored #%d", i+1),
			CallToAction: "Install",
		})
	}

	items := feed.Compose(feed.Sequence(size), stride, pool)
	slots, filled := 0, 0
	for i, item := range items {
		if !item.IsAd() {
			fmt.Fprintf(out, "%4d  data %d\n", i, item.Data)
			continue
		}
		slots++
		if ad, ok := item.Ad.Fetch(); ok {
			filled++
			fmt.Fprintf(out, "%4d  ad   %s [%s]\n", i, ad.Title, ad.CallToAction)
		} else {
			fmt.Fprintf(out, "%4d  ad   (empty)\n", i)
		}
	}
	fmt.Fprintf(out, "%d items, %d ad slots, %d filled\n", len(items), slots, filled)
	return nil
}
