package mode

import (
	"context"
	"io"
	"log/slog"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/pipeline"
	"github.com/khaledhikmat/vs-infer/service/capture"
	"github.com/khaledhikmat/vs-infer/service/config"
	"github.com/khaledhikmat/vs-infer/service/data"
	"github.com/khaledhikmat/vs-infer/service/inference"
	"github.com/khaledhikmat/vs-infer/service/lgr"
)

// ServicesFactory carries the services a mode processor needs.
type ServicesFactory struct {
	CfgSvc       config.IService
	DataSvc      data.IService
	CaptureSvc   capture.IService
	InferenceSvc inference.IService
	// Out receives the human readable results
	Out          io.Writer
}

// Request selects the frame source a mode runs on.
type Request struct {
	Source   model.SourceMode
	Input    pipeline.Input
	// DeviceID overrides the configured camera when >= 0
	DeviceID int
}

type Processor func(canxCtx context.Context, svcs ServicesFactory, req Request) error

func procStats(datasvc data.IService, stats interface{}) {
	switch stats := stats.(type) {
	case model.RunnerStats:
		procRunnerStats(datasvc, stats)
	case model.SessionStats:
		procSessionStats(datasvc, stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func procRunnerStats(datasvc data.IService, stats model.RunnerStats) {
	err := datasvc.NewRunnerStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store runner stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procSessionStats(datasvc data.IService, stats model.SessionStats) {
	err := datasvc.NewSessionStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store session stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
