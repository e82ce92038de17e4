// Package dispatch consumes the event stream of an agent run and turns every
// event into a normalized notification.
//
// The mapping is a stateless table from event variant to notification:
//
//	MessageDelta            -> message{content}
//	ThreadMessage completed -> completed_message{content}   (other statuses filtered)
//	ThreadRun               -> thread_run{status, error}
//	RunStep tool_calls done -> tool_call{status, details}   (other steps filtered)
//	Error                   -> error{error}
//	Done                    -> stream_end
//
// Notifications are delivered strictly in arrival order. A content error on
// one event (for instance a delta without text) becomes an error
// notification for that event and the loop carries on. Only a failing
// transport ends the loop with an error, as *TransportError.
//
// The dispatcher runs inside the run span its caller opened. The span is
// passed explicitly in Request; agent_id and thread_id are set on it before
// the first event is read, and run_status/run_error follow the run events.
//
// Whatever way the loop ends (Done, closure, failure, cancellation or a sink
// asking to stop) the stream is closed exactly once.
package dispatch
