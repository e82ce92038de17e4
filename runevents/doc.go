// Package runevents defines the data model of a hosted agent conversation
// (threads, messages, runs and run steps) and the events a streaming run
// produces.
//
// StreamEvent is a closed union:
//  1. MessageDelta: an incremental text fragment of a message being generated
//  2. ThreadMessage: a message lifecycle change (in_progress, completed, incomplete)
//  3. ThreadRun: a run status change, carrying the failure cause when the run failed
//  4. RunStep: a step lifecycle change; Details holds the raw step payload
//  5. Error: an error reported in-band by the service
//  6. Done: the end-of-stream sentinel
//
// Events travel as server-sent-event envelopes, {"event": name, "data": payload}.
// FromJSON decodes one envelope and ToJSON produces one, so recorded streams can
// be replayed through the same code path as live ones.
//
//	ev, err := runevents.FromJSON(line)
//	if errors.Is(err, runevents.ErrUnknownEvent) {
//	    // thread.created, step deltas and other events with no counterpart
//	}
//	switch e := ev.(type) {
//	case runevents.MessageDelta:
//	case runevents.ThreadRun:
//	}
package runevents
