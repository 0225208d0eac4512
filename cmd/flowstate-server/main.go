// Command flowstate-server is the dedicated match server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-flowstate/flowstate/internal/logger"
	"github.com/project-flowstate/flowstate/internal/server"
)

// Version is set at build time
var Version = "dev"

func main() {
	var (
		configPath string
		logLevel   string
		seed       uint64
		listen     string
		realtime   string
		ops        string
		replayDir  string
		testMode   bool
		testIDs    []uint
	)

	root := &cobra.Command{
		Use:   "flowstate-server",
		Short: "flowstate-server — authoritative deterministic match server",
		Long: "Hosts one two-player match: admits sessions, pumps the fixed-timestep\n" +
			"simulation, broadcasts snapshots, and writes the replay artifact.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logLevel, ""); err != nil {
				return err
			}

			cfg, err := server.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("realtime") {
				cfg.RealtimeAddr = realtime
			}
			if cmd.Flags().Changed("ops") {
				cfg.OpsListenAddr = ops
			}
			if cmd.Flags().Changed("replay-dir") {
				cfg.ReplayDir = replayDir
			}
			if cmd.Flags().Changed("test-mode") {
				cfg.TestMode = testMode
			}
			if cmd.Flags().Changed("test-player-ids") {
				ids := make([]uint32, len(testIDs))
				for i, id := range testIDs {
					ids[i] = uint32(id)
				}
				cfg.TestPlayerIDs = ids
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return serve(cfg)
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	root.Flags().Uint64Var(&seed, "seed", 0, "world seed")
	root.Flags().StringVar(&listen, "listen", ":7777", "control channel listen address")
	root.Flags().StringVar(&realtime, "realtime", ":7778", "realtime channel listen address")
	root.Flags().StringVar(&ops, "ops", ":9090", "metrics listen address")
	root.Flags().StringVar(&replayDir, "replay-dir", "replays", "directory for replay artifacts")
	root.Flags().BoolVar(&testMode, "test-mode", false, "use configured test player ids")
	root.Flags().UintSliceVar(&testIDs, "test-player-ids", nil, "player ids for test mode")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
