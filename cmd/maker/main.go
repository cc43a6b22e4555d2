package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"main/internal/app"
	"main/internal/ops"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := ops.Load()
	if err != nil {
		logs.Errorf("load config: %+v", err)
		os.Exit(1)
	}

	if cfg.PyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "standx-maker",
			ServerAddress:   cfg.PyroscopeAddr,
			Tags: map[string]string{
				"symbol":  cfg.Symbol,
				"account": cfg.AccountName,
			},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Warnf("pyroscope start failed: %+v", err)
		} else {
			defer func() { _ = profiler.Stop() }()
		}
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		logs.Errorf("build app: %+v", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		logs.Errorf("run: %+v", err)
		os.Exit(1)
	}
}
