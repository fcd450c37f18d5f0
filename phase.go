package main

// phase is the room's position in the lobby/playing/finished machine.
// Pack selection and settings changes force the room back to lobby, even
// from finished, so the pre-game controls reappear. A game in progress can
// only move forward to finished; it never drops straight back to lobby.
type phase string

const (
	phaseLobby    phase = "lobby"
	phasePlaying  phase = "playing"
	phaseFinished phase = "finished"
)

// canConfigure reports whether pack selection, settings changes, and game
// start are legal in this phase.
func (p phase) canConfigure() bool {
	return p == phaseLobby || p == phaseFinished
}
