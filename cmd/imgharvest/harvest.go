package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"imgharvest/pkg/config"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/scraper"
	"imgharvest/pkg/ui"
)

var (
	// Harvest command flags
	targetCount int
	multiplier  float64
	maxScroll   int
	outputDir   string
	concurrent  int
	headless    bool
	categories  []string
	searchURL   string
)

// harvestCmd represents the harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest images for every configured category",
	Long: `Harvest images for every configured category, one category at a time.

Categories come from the configuration file, IMGHARVEST_CATEGORIES or
repeated --category flags. Flags given on the command line replace the
matching configuration values.`,
	Example: `  # Use the categories from imgharvest.yaml
  imgharvest harvest

  # 200 images each of two ad-hoc categories
  imgharvest harvest --category cats="cat photo" --category dogs="dog photo" --target 200

  # Run without a window on a server and download sequentially
  imgharvest harvest --headless --concurrent 1`,
	Args: cobra.NoArgs,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().IntVarP(&targetCount, "target", "n", 0, "images to store per category")
	harvestCmd.Flags().Float64Var(&multiplier, "multiplier", 0, "candidate oversampling factor")
	harvestCmd.Flags().IntVar(&maxScroll, "max-scroll", 0, "maximum scroll iterations per category")
	harvestCmd.Flags().StringVarP(&outputDir, "output", "o", "", "dataset base directory")
	harvestCmd.Flags().IntVar(&concurrent, "concurrent", 0, "number of concurrent downloads")
	harvestCmd.Flags().BoolVar(&headless, "headless", false, "run the browser headless (challenges cannot be solved by hand)")
	harvestCmd.Flags().StringArrayVar(&categories, "category", nil, "category as name=query (repeatable)")
	harvestCmd.Flags().StringVar(&searchURL, "search-url", "", "search URL template with %s for the query")
}

func harvestFlags(cmd *cobra.Command) (map[string]interface{}, error) {
	flags := globalFlags()
	if cmd.Flags().Changed("target") {
		flags["target"] = targetCount
	}
	if cmd.Flags().Changed("multiplier") {
		flags["multiplier"] = multiplier
	}
	if cmd.Flags().Changed("max-scroll") {
		flags["max-scroll"] = maxScroll
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if cmd.Flags().Changed("concurrent") {
		flags["concurrent"] = concurrent
	}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = headless
	}
	if searchURL != "" {
		flags["search-url"] = searchURL
	}
	if len(categories) > 0 {
		cats, err := config.ParseCategories(categories)
		if err != nil {
			return nil, err
		}
		flags["categories"] = cats
	}
	return flags, nil
}

func runHarvest(cmd *cobra.Command, args []string) error {
	flags, err := harvestFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("imgharvest starting")

	ui.PrintBanner()
	names := make([]string, 0, len(cfg.Categories))
	for _, c := range cfg.CategoryList() {
		names = append(names, c.Name)
	}
	ui.PrintInfo("Categories", strings.Join(names, ", "))
	ui.PrintInfo("Target per category", fmt.Sprintf("%d (%d candidates)", cfg.Harvest.TargetCount, cfg.CandidateTarget()))
	ui.PrintInfo("Output", cfg.Output.BaseDirectory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := scraper.New(cfg, scraper.WithLogger(log), scraper.OnResult(ui.PrintRunReport))
	if err != nil {
		ui.PrintError("Failed to initialize harvester", err.Error())
		os.Exit(1)
	}

	results := s.Run(ctx)
	short := ui.PrintSummary(results)

	if ctx.Err() != nil {
		ui.PrintError("Harvest interrupted")
		os.Exit(1)
	}
	if short > 0 {
		log.WithField("categories", short).Warn("Harvest finished with shortfall")
		os.Exit(1)
	}
	log.Info("Harvest completed")
	return nil
}
