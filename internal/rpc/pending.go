package rpc

// callResult carries either the decoded response or the failure that ended
// the pending call.
type callResult struct {
	resp Response
	err  error
}

// pendingCall tracks one in-flight command. It is registered by Call before
// publishing and removed exactly once, by whichever of delivery, publish
// failure, timeout, or cancellation wins.
type pendingCall struct {
	correlationID string
	expectKind    string
	done          chan callResult // buffered, completed at most once
}

func newPendingCall(correlationID, expectKind string) *pendingCall {
	return &pendingCall{
		correlationID: correlationID,
		expectKind:    expectKind,
		done:          make(chan callResult, 1),
	}
}

func (p *pendingCall) complete(res callResult) {
	p.done <- res
}
