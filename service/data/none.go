package data

import "github.com/khaledhikmat/vs-infer/model"

type noneService struct{}

// NewNone discards everything.
func NewNone() IService {
	return noneService{}
}

func (noneService) NewError(interface{}) error               { return nil }
func (noneService) NewRunnerStats(model.RunnerStats) error   { return nil }
func (noneService) NewSessionStats(model.SessionStats) error { return nil }
func (noneService) Close() error                             { return nil }
