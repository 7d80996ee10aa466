// Package session wraps one streaming connection to a conversational agent.
//
// A Handle owns the lifecycle of a single connection:
//
//	Idle → Connecting → Connected → Disconnecting → Idle
//
// with a terminal Failed state reachable from Connecting or Connected.
// Disconnect always returns the handle to Idle, after which it can be
// configured and connected again.
//
// The wire protocol is not handled here. A Transport dials connections and
// each Conn delivers transcription fragments, turn boundaries, audio frames
// and faults as Events, in arrival order. The Handle re-emits those events to
// typed observers, keeps a live volume level, and queues outgoing text on an
// outbox so that Send never blocks the caller.
//
// # Usage
//
//	h := session.NewHandle(profile, transport, logger)
//	if err := h.Configure(session.Config{ResponseModality: session.ModalityAudio, Voice: "Puck"}); err != nil {
//		return err
//	}
//	sub := h.OnTranscription(func(text string) { fmt.Print(text) })
//	defer sub.Cancel()
//	if err := h.Connect(ctx); err != nil {
//		return err
//	}
//	h.Send("Hello")
package session
