package engine

import "errors"

// Invalid-operation and data-integrity errors. These propagate to the
// caller as explicit failures; callers must not retry them blindly.
var (
	// ErrInvalidScenario indicates scenario content the engine cannot run,
	// e.g. an empty node sequence.
	ErrInvalidScenario = errors.New("invalid scenario content")

	// ErrIncompleteSessionExists is returned by Start when an incomplete
	// session already exists for the (user, scenario) pair. The caller must
	// resume it or explicitly discard it; the engine never merges sessions.
	ErrIncompleteSessionExists = errors.New("incomplete session exists; resume or discard it first")

	// ErrNoIncompleteSession is returned by Resume when there is nothing
	// to resume.
	ErrNoIncompleteSession = errors.New("no incomplete session to resume")

	// ErrSessionFinalized indicates a mutation attempt on a frozen session.
	ErrSessionFinalized = errors.New("session is finalized")

	// ErrSessionComplete indicates a completion attempt past the end of
	// the node sequence.
	ErrSessionComplete = errors.New("session has no remaining nodes")

	// ErrOutOfOrder indicates the given node is not the session's current
	// node. Nodes complete strictly in ascending order; there is no skip
	// and no going back.
	ErrOutOfOrder = errors.New("node is not the session's current node")

	// ErrWrongNodeType indicates a completion operation applied to the
	// wrong node type, e.g. CompleteDecision on a reflection node.
	ErrWrongNodeType = errors.New("operation does not match node type")

	// ErrEmptyReflection indicates a reflection submission with no content.
	ErrEmptyReflection = errors.New("reflection text is empty")

	// ErrInvalidChoice indicates a choice that does not belong to the
	// current decision node.
	ErrInvalidChoice = errors.New("choice does not belong to this node")

	// ErrNotComplete indicates Finalize was called before the node
	// sequence was exhausted.
	ErrNotComplete = errors.New("session has uncompleted nodes")
)
