package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/config"
)

type IService interface {
	NewError(err interface{}) error
	NewRunnerStats(stats model.RunnerStats) error
	NewSessionStats(stats model.SessionStats) error
	Close() error
}

// New returns the sink selected by the DATA_SINK setting.
func New(ctx context.Context, cfgSvc config.IService) (IService, error) {
	switch strings.ToLower(cfgSvc.GetDataSink()) {
	case "", "files":
		return NewFilesDB(cfgSvc), nil
	case "postgres":
		return NewPostgres(ctx, cfgSvc.GetPostgresDSN())
	case "none":
		return NewNone(), nil
	}
	return nil, fmt.Errorf("unknown data sink %q", cfgSvc.GetDataSink())
}

type errorRecord struct {
	Timestamp  int64                  `json:"timestamp"`
	Processor  string                 `json:"processor"`
	Inner      string                 `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func newErrorRecord(err interface{}) errorRecord {
	rec := errorRecord{
		Timestamp:  time.Now().Unix(),
		Processor:  "N/A",
		StackTrace: "N/A",
	}

	switch e := err.(type) {
	case model.CustomError:
		rec.Processor = e.Processor
		rec.Message = e.Message
		rec.StackTrace = e.StackTrace
		rec.Misc = e.Misc
		if e.Inner != nil {
			rec.Inner = e.Inner.Error()
		}
	case error:
		rec.Inner = e.Error()
		rec.Message = e.Error()
	default:
		rec.Message = fmt.Sprintf("%v", e)
	}

	return rec
}
