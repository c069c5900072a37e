package tui

import "github.com/Veraticus/nsfw-sweep/internal/events"

// eventMsg carries one session event into the update loop.
type eventMsg struct {
	event events.Event
}

// eventsClosedMsg signals that no further events will arrive.
type eventsClosedMsg struct{}

type scanStartedMsg struct {
	err error
}

type deletedMsg struct {
	err      error
	filename string
}

type revealedMsg struct {
	err      error
	filename string
}
