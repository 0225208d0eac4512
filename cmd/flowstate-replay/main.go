// Command flowstate-replay verifies and inspects replay artifacts.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/project-flowstate/flowstate/internal/replay"
)

// Version is set at build time
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "flowstate-replay",
		Short:   "flowstate-replay — replay artifact tooling",
		Version: Version,
	}
	root.AddCommand(verifyCmd(), inspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func verifyCmd() *cobra.Command {
	var strict bool
	var skipBuild bool

	cmd := &cobra.Command{
		Use:   "verify <artifact>",
		Short: "re-execute an artifact and prove its final digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			art, err := replay.ReadArtifact(args[0])
			if err != nil {
				return err
			}

			opts := replay.VerifyOptions{StrictBuildCheck: strict}
			if !skipBuild {
				fp, err := replay.CurrentBuildFingerprint()
				if err != nil {
					return err
				}
				opts.CurrentBuild = fp
			}

			res, err := replay.Verify(art, opts)
			for _, w := range res.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w)
			}
			if err != nil {
				return err
			}
			fmt.Printf("ok: %d ticks, final digest %016x\n", art.CheckpointTick, art.FinalDigest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail on any build fingerprint mismatch")
	cmd.Flags().BoolVar(&skipBuild, "skip-build-check", false, "do not compare build fingerprints")
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "print an artifact's header and input statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			art, err := replay.ReadArtifact(args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "format version\t%d\n", art.ReplayFormatVersion)
			fmt.Fprintf(w, "seed\t%d\n", art.Seed)
			fmt.Fprintf(w, "tick rate\t%d Hz\n", art.TickRateHz)
			fmt.Fprintf(w, "digest algorithm\t%s\n", art.StateDigestAlgoID)
			fmt.Fprintf(w, "rng algorithm\t%s\n", art.RNGAlgorithm)
			if art.InitialBaseline != nil {
				fmt.Fprintf(w, "baseline tick\t%d\n", art.InitialBaseline.Tick)
				fmt.Fprintf(w, "baseline digest\t%016x\n", art.InitialBaseline.Digest)
				fmt.Fprintf(w, "baseline entities\t%d\n", len(art.InitialBaseline.Entities))
			}
			fmt.Fprintf(w, "spawn order\t%v\n", art.EntitySpawnOrder)
			for _, pe := range art.PlayerEntityMapping {
				fmt.Fprintf(w, "player %d\tentity %d\n", pe.PlayerID, pe.EntityID)
			}
			for _, tp := range art.TuningParameters {
				fmt.Fprintf(w, "tuning %s\t%g\n", tp.Key, tp.Value)
			}

			fallbacks := 0
			for _, in := range art.Inputs {
				if in.IsFallback {
					fallbacks++
				}
			}
			fmt.Fprintf(w, "applied inputs\t%d (%d fallback)\n", len(art.Inputs), fallbacks)
			fmt.Fprintf(w, "checkpoint tick\t%d\n", art.CheckpointTick)
			fmt.Fprintf(w, "final digest\t%016x\n", art.FinalDigest)
			fmt.Fprintf(w, "end reason\t%s\n", art.EndReason)
			if art.TestMode {
				fmt.Fprintf(w, "test mode\ttrue, player ids %v\n", art.TestPlayerIDs)
			}
			if fp := art.BuildFingerprint; fp != nil {
				fmt.Fprintf(w, "build\t%s %s/%s commit %s\n", fp.BinarySHA256, fp.TargetTriple, fp.Profile, fp.VCSCommit)
			}
			return w.Flush()
		},
	}
}
