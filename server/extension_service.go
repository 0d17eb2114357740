package server

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	"github.com/beyond-immersion/bannou-service-sub001/runtime"
)

// ExtensionService delivers extension models to pending continuations.
type ExtensionService struct {
	rt *runtime.Runtime
}

// NewExtensionService creates an ExtensionService.
func NewExtensionService(rt *runtime.Runtime) *ExtensionService {
	return &ExtensionService{rt: rt}
}

// Attach offers an extension for the pending continuation named by
// continuation_id. The engine's verdict comes back in the response
// body: a pending that timed out, resolved, or never existed is an
// expected outcome, not a transport failure. Only a model that cannot
// be deserialized, fails verification, or is not an extension body
// fails the call.
func (s *ExtensionService) Attach(
	ctx context.Context,
	req *connect.Request[AttachRequest],
) (*connect.Response[AttachResponse], error) {
	if req.Msg.ContinuationID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("continuation_id is required"))
	}
	if len(req.Msg.Model) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("model bytes are required"))
	}

	result, err := s.rt.Attach(req.Msg.ContinuationID, req.Msg.Model)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&AttachResponse{Result: result.String()}), nil
}

// ListPending reports every continuation the engine tracks, so a
// delivery service can discover open windows without polling each
// actor's status.
func (s *ExtensionService) ListPending(
	ctx context.Context,
	req *connect.Request[ListPendingRequest],
) (*connect.Response[ListPendingResponse], error) {
	records := s.rt.PendingContinuations()
	resp := &ListPendingResponse{Pending: make([]PendingContinuation, len(records))}
	for i, rec := range records {
		resp.Pending[i] = PendingContinuation{
			ContinuationID: rec.ID,
			Point:          rec.Point,
			State:          rec.State.String(),
			Opened:         rec.Opened,
			Deadline:       rec.Deadline,
			DefaultFlow:    rec.Default,
		}
	}
	return connect.NewResponse(resp), nil
}
