package data

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/config"
)

type filesDBService struct {
	CfgSvc config.IService
	mu     sync.Mutex
}

// NewFilesDB keeps every entity kind in its own JSON array file under the
// output folder.
func NewFilesDB(cfgsvc config.IService) IService {
	return &filesDBService{
		CfgSvc: cfgsvc,
	}
}

func (svc *filesDBService) NewError(err interface{}) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(newErrorRecord(err), "errors", svc.CfgSvc)
}

func (svc *filesDBService) NewRunnerStats(stats model.RunnerStats) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "runner-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewSessionStats(stats model.SessionStats) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "session-stats", svc.CfgSvc)
}

func (svc *filesDBService) Close() error {
	return nil
}

func newEntity[T any](entity T, filename string, cfgsvc config.IService) error {
	entities, err := retrieveEntites[T](filename, cfgsvc)
	if err != nil {
		return err
	}

	entities = append(entities, entity)

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgsvc.GetOutputFolder(), 0755); err != nil {
		return err
	}

	// Write the JSON data to the file (with truncation)
	output := fmt.Sprintf("%s/%s.json", cfgsvc.GetOutputFolder(), filename)
	return os.WriteFile(output, data, 0644)
}

func retrieveEntites[T any](filename string, cfgsvc config.IService) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(fmt.Sprintf("%s/%s.json", cfgsvc.GetOutputFolder(), filename))
	if err != nil {
		// WARNING: File not found, return empty slice
		return entities, nil
	}

	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, err
	}

	return entities, nil
}
