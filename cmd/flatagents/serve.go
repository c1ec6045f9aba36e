package main

import (
	"fmt"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strings"

	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/memgrafter/flatagents"
	"github.com/memgrafter/flatagents/pkg/adapters/http"
	"github.com/memgrafter/flatagents/pkg/adapters/process"
	redisstore "github.com/memgrafter/flatagents/pkg/adapters/redis"
)

var serveCmd = &cobra.Command{
	Use:   "serve <machine.yml> [more.yml...]",
	Short: "Serve machines over HTTP",
	Long: `Loads one or more machine definitions and exposes them on a JSON
API: GET /machines, GET /machines/{name}, POST /machines/{name}/execute.
With --redis, finished run traces persist and GET /runs/{id} replays them.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("redis", "", "Redis address for trace persistence (host:port)")
}

func serve(cmd *cobra.Command, paths []string) error {
	logger := newLogger(cmd)

	machines := make(map[string]http.Runner, len(paths))
	for _, path := range paths {
		m, err := flatagents.New(path,
			flatagents.WithResolver(process.NewResolver()),
			flatagents.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		machines[m.Name] = m
		logger.Info("machine loaded", "machine", m.Name, "file", path)
	}

	var opts []http.ServerOption
	opts = append(opts, http.WithLogger(logger))
	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		client := backend.NewClient(&backend.Options{Addr: addr})
		opts = append(opts, http.WithTraceStore(redisstore.NewFromClient(client)))
		logger.Info("trace persistence enabled", "redis", addr)
	}

	server := http.NewServer(machines, opts...)
	addr, _ := cmd.Flags().GetString("addr")
	logger.Info("listening", "addr", addr, "machines", strings.Join(names(machines), ","))
	return nethttp.ListenAndServe(addr, server.Handler())
}

func names(machines map[string]http.Runner) []string {
	out := make([]string, 0, len(machines))
	for name := range machines {
		out = append(out, name)
	}
	return out
}
