package domain

// EventKind identifies a Tile Factory notification.
type EventKind string

// Tile Factory notifications.
const (
	// EventSourcesUpdated is published after the source list was replaced.
	EventSourcesUpdated EventKind = "sourcesUpdated"
	// EventChartsChanged carries the extents of charts whose visibility or
	// presence changed.
	EventChartsChanged EventKind = "chartsChanged"
	// EventTileDataChanged carries the ids of tiles whose data must be
	// requested again.
	EventTileDataChanged EventKind = "tileDataChanged"
)

// Event is a notification published by the Tile Factory.
type Event struct {
	Kind    EventKind `json:"kind"`
	Regions []GeoRect `json:"regions,omitempty"`
	TileIDs []string  `json:"tileIds,omitempty"`
}
