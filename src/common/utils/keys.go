package utils

import "fmt"

const (
	CommandQueue = "train-commands"
	EventQueue   = "track-events"
	EventTopic   = "/topic/track-events"
)

func BuildSnapshotKey(route string) string {
	return fmt.Sprintf("tcs:snapshot:%s", route)
}

func BuildSnapshotTickKey(route string, tick int64) string {
	return fmt.Sprintf("tcs:snapshot:%s:%d", route, tick)
}
