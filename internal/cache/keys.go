package cache

import "fmt"

// SimulationStatusKey is scoped by owner so a status read never needs a
// database round trip to check ownership.
func SimulationStatusKey(userID, simulationID int64) string {
	return fmt.Sprintf("user:%d:simulation:%d:status", userID, simulationID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
