package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compound-floodrisk/sfincs-batch/internal/config"
	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
	"github.com/compound-floodrisk/sfincs-batch/internal/observability"
)

var postprocessCmd = &cobra.Command{
	Use:   "postprocess <run-dir>...",
	Short: "Write gis/hmax.tif and figs/hmax.png for finished run directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := observability.NewLogger(cfg)
		post := newProcessor(cfg, logger, observability.NewMetrics())

		var failed int
		for _, root := range args {
			rep, err := post.Process(cmd.Context(), root)
			if err != nil {
				failed++
				logger.Error("post-processing failed", "dir", root, "error", err)
				continue
			}
			logger.Info("post-processed",
				"dir", root,
				"raster", rep.Raster,
				"computed", rep.Computed,
				"written", rep.Written,
				"cleanup_failures", len(domain.Failed(rep.Cleanup)),
			)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d run directories failed", failed, len(args))
		}
		return nil
	},
}
