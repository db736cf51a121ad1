package main

import (
	"testing"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/config"
)

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		name     string
		opts     options
		wantErr  bool
		wantMode model.SourceMode
		wantPath string
		wantBlob bool
	}{
		{name: "live", opts: options{source: "live", device: 1}, wantMode: model.LiveCamera},
		{name: "camera alias", opts: options{source: "camera", device: -1}, wantMode: model.LiveCamera},
		{name: "image", opts: options{source: "upload", file: "cat.jpg"}, wantMode: model.Upload, wantPath: "cat.jpg"},
		{name: "video stdin", opts: options{source: "video", file: "-"}, wantMode: model.VideoFile, wantBlob: true},
		{name: "video without file", opts: options{source: "video"}, wantErr: true},
		{name: "unknown", opts: options{source: "webcam2"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := buildRequest(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Source != tt.wantMode || req.Input.Path != tt.wantPath || (req.Input.Blob != nil) != tt.wantBlob {
				t.Errorf("got %+v", req)
			}
			if req.DeviceID != tt.opts.device {
				t.Errorf("got device %d, want %d", req.DeviceID, tt.opts.device)
			}
		})
	}
}

func TestRootCommandHasEveryMode(t *testing.T) {
	root := newRootCmd(config.NewEnvWithLookup(func(string) (string, bool) { return "", false }))
	for name := range modeProcessors {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("mode %s has no command", name)
		}
	}
}
