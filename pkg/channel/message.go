// Package channel implements the Message Channel (spec.md §4.3): a
// reliable, ordered, duplex carrier of structured messages between a
// Controller and one Executor. Request/reply correlation, streamed
// replies and reject-on-terminate all live here; the Executor and Worker
// Handle packages build request/reply payloads on top of it.
package channel

// Kind discriminates the payload carried by a Message, matching the wire
// protocol's request and reply kinds (spec.md §6).
type Kind string

const (
	// Request kinds (Controller -> Executor).
	KindImportFileProcessor Kind = "importFileProcessor"
	KindImportModule        Kind = "importModule"
	KindProcessFile         Kind = "processFile"

	// Reply kinds (Executor -> Controller), all carry `To`.
	KindFileProcessorImported Kind = "fileProcessorImported"
	KindFinished              Kind = "finished"
	KindFile                  Kind = "file"
	KindLog                   Kind = "log"
	KindError                 Kind = "error"
)

// isTerminal reports whether a reply Kind ends a stream (spec.md §4.3:
// "Terminates when a reply's type = finished arrives"; an error reply is
// likewise terminal for the stream it belongs to).
func (k Kind) isTerminal() bool {
	return k == KindFinished || k == KindError || k == KindFileProcessorImported
}

// Message is the generic envelope for every value flowing across a
// Channel. Every outgoing message is stamped with a process-wide
// monotonic ID; every reply carries To, the id of the request it answers
// (spec.md §4.3 "Framing").
type Message struct {
	ID      uint64
	To      uint64
	Kind    Kind
	Payload any
}
