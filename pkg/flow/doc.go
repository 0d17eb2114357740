// Package flow executes behavior documents.
//
// A run walks one flow's action list in order, dispatching each action
// to a handler from the Registry and interpreting the control kinds
// (goto, call, end, terminate, await) inline. Runs are stateless:
// pausing at an await returns a request describing the continuation
// point, and resuming is a fresh Execute on whichever flow the
// resolution names. Nothing about a paused run lives inside the
// executor, so a document can be hot-swapped between runs without
// coordination.
//
// Handler failures degrade rather than abort: the failure is recorded
// in the scope under the error.* keys and the run continues with the
// next action, unless the failing action was marked fatal.
package flow
