package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-infer/mode"
	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/pipeline"
	"github.com/khaledhikmat/vs-infer/service/capture"
	"github.com/khaledhikmat/vs-infer/service/config"
	"github.com/khaledhikmat/vs-infer/service/data"
	"github.com/khaledhikmat/vs-infer/service/inference"
	"github.com/khaledhikmat/vs-infer/service/lgr"
	"github.com/khaledhikmat/vs-infer/service/opencv"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	config.ClassifierName: mode.Classifier,
	config.PostureName:    mode.Posture,
	config.TrafficName:    mode.Traffic,
}

var modeDescriptions = map[string]string{
	config.ClassifierName: "Classify an image, a video or the camera feed",
	config.PostureName:    "Estimate body keypoints and give posture feedback",
	config.TrafficName:    "Detect and count cars, trucks and motorcycles",
}

type options struct {
	source string
	file   string
	device int
	fake   bool
}

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)
	defer canxFn()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			lgr.Logger.Error("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
			panic("error loading .env file")
		}
	}

	cfgSvc := config.NewEnv()
	lgr.SetLevel(cfgSvc.GetRunTimeEnv(), cfgSvc.GetLogLevel())

	if err := newRootCmd(cfgSvc).ExecuteContext(canxCtx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfgSvc config.IService) *cobra.Command {
	opts := options{}

	rootCmd := &cobra.Command{
		Use:          "vs-infer",
		Short:        "Run vision models over images, videos and cameras",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.source, "source", "s", "live", "Frame source: upload, video or live")
	rootCmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "", "Image or video file for the upload and video sources, - reads stdin")
	rootCmd.PersistentFlags().IntVarP(&opts.device, "device", "d", -1, "Camera device id (default: from the configuration)")
	rootCmd.PersistentFlags().BoolVar(&opts.fake, "fake", false, "Use synthetic frames and a deterministic model")

	names := make([]string, 0, len(modeProcessors))
	for name := range modeProcessors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rootCmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: modeDescriptions[name],
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMode(cmd, cfgSvc, name, opts)
			},
		})
	}

	return rootCmd
}

func buildRequest(opts options) (mode.Request, error) {
	source, err := model.ParseSourceMode(opts.source)
	if err != nil {
		return mode.Request{}, err
	}

	req := mode.Request{
		Source:   source,
		DeviceID: opts.device,
	}

	if source == model.LiveCamera {
		return req, nil
	}

	switch opts.file {
	case "":
		return mode.Request{}, fmt.Errorf("--file is required for the %s source", source)
	case "-":
		req.Input = pipeline.Input{Blob: os.Stdin}
	default:
		req.Input = pipeline.Input{Path: opts.file}
	}
	return req, nil
}

func runMode(cmd *cobra.Command, cfgSvc config.IService, name string, opts options) error {
	canxCtx := cmd.Context()

	modeProc, ok := modeProcessors[name]
	if !ok {
		return fmt.Errorf("invalid mode %q", name)
	}

	req, err := buildRequest(opts)
	if err != nil {
		return err
	}

	// Create the services needed for the mode processor
	// Data service
	dataSvc, err := data.New(canxCtx, cfgSvc)
	if err != nil {
		return err
	}
	defer dataSvc.Close()

	svcs := mode.ServicesFactory{
		CfgSvc:       cfgSvc,
		DataSvc:      dataSvc,
		CaptureSvc:   opencv.NewCapture(),
		InferenceSvc: opencv.NewInference(),
		Out:          cmd.OutOrStdout(),
	}
	if opts.fake {
		svcs.CaptureSvc = capture.NewFake(640, 480, 300)
		svcs.InferenceSvc = inference.NewFakeService(inference.NewFake())
	}

	// Start the mode processor
	modeProcResult := make(chan error, 1)
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, req)
	}()

	// Wait for cancellation or mode proc
	select {
	case err := <-modeProcResult:
		return err

	case <-canxCtx.Done():
		lgr.Logger.Info(
			"vs-infer context cancelled",
			slog.String("mode", name),
		)
	}

	// Give the mode processor `waitOnShutdown` to release its camera and report
	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"vs-infer shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)
		return nil

	case err := <-modeProcResult:
		if err != nil {
			lgr.Logger.Info(
				"vs-infer mode processor exited",
				slog.Any("error", xerrors.New(err.Error())),
			)
		}
		return err
	}
}
