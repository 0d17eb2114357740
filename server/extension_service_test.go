package server

import (
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/bytecode"
)

// challengeExtension writes goal.posture and resolves the sentry's
// challenge window.
func challengeExtension(t *testing.T) []byte {
	t.Helper()
	b := bytecode.NewBuilder().Extension("sentry", "challenge")
	posture := b.Output("goal.posture")
	resolved := b.Output("memory.resolved")
	b.EmitConst(2)
	b.EmitSlot(bytecode.OpStoreOutput, posture)
	b.EmitConst(1)
	b.EmitSlot(bytecode.OpStoreOutput, resolved)
	b.Emit(bytecode.OpHalt)
	model, err := b.Build()
	if err != nil {
		t.Fatalf("Expected extension to build, got %v", err)
	}
	data, err := model.Serialize()
	if err != nil {
		t.Fatalf("Expected extension to serialize, got %v", err)
	}
	return data
}

func suspendedContinuationID(t *testing.T, actors *ActorService, actorID string) string {
	t.Helper()
	if _, err := actors.Spawn(bg(), connectReq(&SpawnRequest{ActorID: actorID, Template: "sentry"})); err != nil {
		t.Fatalf("Spawn returned error: %v", err)
	}
	var cid string
	waitFor(t, 2*time.Second, "a pending continuation", func() bool {
		st, err := actors.GetStatus(bg(), connectReq(&GetStatusRequest{ActorID: actorID}))
		if err != nil {
			return false
		}
		cid = st.Msg.ContinuationID
		return cid != ""
	})
	return cid
}

func TestAttachResults(t *testing.T) {
	actors, extensions, _, _ := newTestEnv(t)
	cid := suspendedContinuationID(t, actors, "sentry-1")
	ext := challengeExtension(t)

	resp, err := extensions.Attach(bg(), connectReq(&AttachRequest{ContinuationID: cid, Model: ext}))
	if err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	if resp.Msg.Result != "attached" {
		t.Errorf("Attach result = %q, want %q", resp.Msg.Result, "attached")
	}

	// The window is spent; a second offer reports that, not an error.
	resp, err = extensions.Attach(bg(), connectReq(&AttachRequest{ContinuationID: cid, Model: ext}))
	if err != nil {
		t.Fatalf("Second attach returned error: %v", err)
	}
	if resp.Msg.Result != "already_resolved" {
		t.Errorf("Second attach result = %q, want %q", resp.Msg.Result, "already_resolved")
	}

	resp, err = extensions.Attach(bg(), connectReq(&AttachRequest{ContinuationID: "no-such-window", Model: ext}))
	if err != nil {
		t.Fatalf("Unknown-id attach returned error: %v", err)
	}
	if resp.Msg.Result != "not_found" {
		t.Errorf("Unknown-id attach result = %q, want %q", resp.Msg.Result, "not_found")
	}
}

func TestAttachRejectsBadInput(t *testing.T) {
	actors, extensions, _, _ := newTestEnv(t)
	cid := suspendedContinuationID(t, actors, "sentry-1")

	_, err := extensions.Attach(bg(), connectReq(&AttachRequest{Model: challengeExtension(t)}))
	expectCode(t, err, connect.CodeInvalidArgument)

	_, err = extensions.Attach(bg(), connectReq(&AttachRequest{ContinuationID: cid}))
	expectCode(t, err, connect.CodeInvalidArgument)

	_, err = extensions.Attach(bg(), connectReq(&AttachRequest{ContinuationID: cid, Model: []byte("garbage")}))
	expectCode(t, err, connect.CodeInvalidArgument)
}

func TestListPending(t *testing.T) {
	actors, extensions, _, _ := newTestEnv(t)
	cid := suspendedContinuationID(t, actors, "sentry-1")

	resp, err := extensions.ListPending(bg(), connectReq(&ListPendingRequest{}))
	if err != nil {
		t.Fatalf("ListPending returned error: %v", err)
	}

	var found *PendingContinuation
	for i := range resp.Msg.Pending {
		if resp.Msg.Pending[i].ContinuationID == cid {
			found = &resp.Msg.Pending[i]
		}
	}
	if found == nil {
		t.Fatalf("Expected pending continuation %s in listing", cid)
	}
	if found.Point != "challenge" {
		t.Errorf("Pending point = %q, want %q", found.Point, "challenge")
	}
	if found.State != "open" {
		t.Errorf("Pending state = %q, want %q", found.State, "open")
	}
	if !found.Deadline.After(found.Opened) {
		t.Errorf("Expected deadline after open time, got %s <= %s", found.Deadline, found.Opened)
	}
}
