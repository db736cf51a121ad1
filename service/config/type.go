package config

const (
	ClassifierName = "classifier"
	PostureName    = "posture"
	TrafficName    = "traffic"
)

type ModelParameters struct {
	ModelPath                 string
	ConfigPath                string
	LabelsPath                string
	InputWidth                int
	InputHeight               int
	ConfidenceThreshold       float32
	ObjectConfidenceThreshold float32
	TopK                      int
	AllowedClasses            []string
	ErrorPolicy               string
	CoolDownPeriod            int
	Logging                   bool
}

type CameraParameters struct {
	DeviceID   int
	Width      int
	Height     int
	FacingMode string
}

type IService interface {
	GetRunTimeEnv() string
	GetLogLevel() string
	GetModeMaxShutdownTime() int
	GetOutputFolder() string
	GetDetectionLogFile() string
	GetLoopFPS() int
	GetOverlayFont() (string, float64)
	GetCameraParameters(name string) CameraParameters
	GetModelParameters(name string) ModelParameters
	GetDataSink() string
	GetPostgresDSN() string
}
