package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// compose runs a docker compose subcommand against the selected file.
func compose(ctx context.Context, sub string, args ...string) error {
	return runCommand(ctx, "docker", append([]string{"compose", "-f", composeFile, sub}, args...)...)
}

func newBuildCmd() *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "build [service...]",
		Short: "Build the api and worker images",
		RunE: func(cmd *cobra.Command, args []string) error {
			if noCache {
				args = append([]string{"--no-cache"}, args...)
			}
			return compose(cmd.Context(), "build", args...)
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable Docker build cache")
	return cmd
}

func newUpCmd() *cobra.Command {
	var detach, skipBuild bool
	cmd := &cobra.Command{
		Use:   "up [service...]",
		Short: "Start postgres, redis, minio and the binaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var flags []string
			if !skipBuild {
				flags = append(flags, "--build")
			}
			if detach {
				flags = append(flags, "-d")
			}
			return compose(cmd.Context(), "up", append(flags, args...)...)
		},
	}
	cmd.Flags().BoolVarP(&detach, "detached", "d", true, "Run docker compose in detached mode")
	cmd.Flags().BoolVar(&skipBuild, "skip-build", false, "Skip rebuilding images before starting")
	return cmd
}

func newDownCmd() *cobra.Command {
	var removeVolumes bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			if removeVolumes {
				return compose(cmd.Context(), "down", "-v")
			}
			return compose(cmd.Context(), "down")
		},
	}
	cmd.Flags().BoolVarP(&removeVolumes, "volumes", "v", false, "Also drop database, redis and bucket volumes")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Show logs of stack services",
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow {
				args = append([]string{"-f"}, args...)
			}
			return compose(cmd.Context(), "logs", args...)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "F", false, "Stream logs continuously")
	return cmd
}

func newTestCmd() *cobra.Command {
	var race, cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			if len(args) == 0 {
				args = []string{"./..."}
			}
			return runCommand(cmd.Context(), "go", append(goArgs, args...)...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", true, "Enable the race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a binary from source",
	}
	for _, name := range []string{"api", "worker"} {
		path := "./cmd/" + name
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("go run %s", path),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd.Context(), "go", append([]string{"run", path}, args...)...)
			},
		})
	}
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Stdin = os.Stdin
	return c.Run()
}
