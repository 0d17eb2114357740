package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"

	"github.com/beyond-immersion/bannou-service-sub001/runtime"
)

// ActorService implements the actor control surface: spawn, stop,
// perception delivery, and status.
type ActorService struct {
	rt          *runtime.Runtime
	stopTimeout time.Duration
}

// NewActorService creates an ActorService. stopTimeout bounds graceful
// stops when the request carries no deadline of its own.
func NewActorService(rt *runtime.Runtime, stopTimeout time.Duration) *ActorService {
	return &ActorService{rt: rt, stopTimeout: stopTimeout}
}

// Spawn creates and starts an actor from a registered template.
func (s *ActorService) Spawn(
	ctx context.Context,
	req *connect.Request[SpawnRequest],
) (*connect.Response[SpawnResponse], error) {
	if req.Msg.ActorID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("actor_id is required"))
	}
	if req.Msg.Template == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("template is required"))
	}

	err := s.rt.Spawn(req.Msg.ActorID, req.Msg.Template)
	switch {
	case errors.Is(err, runtime.ErrTemplateNotFound):
		return nil, connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, runtime.ErrActorExists):
		return nil, connect.NewError(connect.CodeAlreadyExists, err)
	case err != nil:
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	}

	return connect.NewResponse(&SpawnResponse{ActorID: req.Msg.ActorID}), nil
}

// Stop halts an actor, gracefully unless the request forces it, and
// reports the state the actor ended in.
func (s *ActorService) Stop(
	ctx context.Context,
	req *connect.Request[StopRequest],
) (*connect.Response[StopResponse], error) {
	if req.Msg.ActorID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("actor_id is required"))
	}

	timeout := s.stopTimeout
	if req.Msg.TimeoutMillis > 0 {
		timeout = time.Duration(req.Msg.TimeoutMillis) * time.Millisecond
	}
	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.rt.Stop(stopCtx, req.Msg.ActorID, !req.Msg.Force)
	switch {
	case errors.Is(err, runtime.ErrActorNotFound):
		return nil, connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, connect.NewError(connect.CodeDeadlineExceeded,
			fmt.Errorf("actor %q did not stop within %s", req.Msg.ActorID, timeout))
	case err != nil:
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	info, err := s.rt.Status(req.Msg.ActorID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&StopResponse{State: info.State.String()}), nil
}

// Send enqueues a perception. Delivery into the actor's bounded queue
// is at-most-once; a full queue drops its oldest entry.
func (s *ActorService) Send(
	ctx context.Context,
	req *connect.Request[SendRequest],
) (*connect.Response[SendResponse], error) {
	if req.Msg.ActorID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("actor_id is required"))
	}
	if req.Msg.Type == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("type is required"))
	}

	err := s.rt.Send(req.Msg.ActorID, runtime.Perception{
		Type:    req.Msg.Type,
		Source:  req.Msg.Source,
		Urgency: req.Msg.Urgency,
		Payload: req.Msg.Payload,
	})
	switch {
	case errors.Is(err, runtime.ErrActorNotFound):
		return nil, connect.NewError(connect.CodeNotFound, err)
	case err != nil:
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	}
	return connect.NewResponse(&SendResponse{}), nil
}

// GetStatus reports one actor's lifecycle state and counters.
func (s *ActorService) GetStatus(
	ctx context.Context,
	req *connect.Request[GetStatusRequest],
) (*connect.Response[ActorStatus], error) {
	if req.Msg.ActorID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("actor_id is required"))
	}
	info, err := s.rt.Status(req.Msg.ActorID)
	if errors.Is(err, runtime.ErrActorNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(statusFromInfo(info)), nil
}

// List reports every actor the runtime tracks, ordered by id.
func (s *ActorService) List(
	ctx context.Context,
	req *connect.Request[ListRequest],
) (*connect.Response[ListResponse], error) {
	infos := s.rt.List()
	resp := &ListResponse{Actors: make([]ActorStatus, len(infos))}
	for i, info := range infos {
		resp.Actors[i] = *statusFromInfo(info)
	}
	return connect.NewResponse(resp), nil
}

func statusFromInfo(info runtime.StatusInfo) *ActorStatus {
	return &ActorStatus{
		ActorID:        info.ActorID,
		Template:       info.Template,
		State:          info.State.String(),
		LastFault:      info.LastFault,
		Ticks:          info.Ticks,
		QueueLen:       info.QueueLen,
		QueueDropped:   info.QueueDropped,
		ContinuationID: info.ContinuationID,
		AwaitingPoint:  info.AwaitingPoint,
	}
}
