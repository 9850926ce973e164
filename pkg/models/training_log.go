package models

import "time"

const (
	LogLevelDebug   = "DEBUG"
	LogLevelInfo    = "INFO"
	LogLevelWarning = "WARNING"
	LogLevelError   = "ERROR"
)

// TrainingLog is an append-only progress entry of a simulation. Robot and
// user ids are denormalized from the owning simulation.
type TrainingLog struct {
	ID           int64     `db:"id"            json:"id"`
	SimulationID int64     `db:"simulation_id" json:"simulation_id"`
	RobotID      int64     `db:"robot_id"      json:"robot_id"`
	UserID       int64     `db:"user_id"       json:"user_id"`
	Level        string    `db:"log_level"     json:"log_level"`
	Message      string    `db:"message"       json:"message"`
	Timestamp    time.Time `db:"timestamp"     json:"timestamp"`
}

var validLogLevels = map[string]bool{
	LogLevelDebug:   true,
	LogLevelInfo:    true,
	LogLevelWarning: true,
	LogLevelError:   true,
}

// ValidLogLevel reports whether level is one of DEBUG, INFO, WARNING, ERROR.
func ValidLogLevel(level string) bool {
	return validLogLevels[level]
}
