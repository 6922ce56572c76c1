package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ignite/outreach-engine/internal/app"
	"github.com/ignite/outreach-engine/internal/config"
)

func main() {
	root := newRootCmd(openEngine)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openEngine(ctx context.Context, configPath string) (Engine, func(), error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a.Engine, a.Close, nil
}
