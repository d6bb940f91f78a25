package model

// ChangeKind describes what happened to a document in a change batch.
type ChangeKind int

const (
	// ChangeAdded introduces a document not previously known.
	ChangeAdded ChangeKind = iota + 1
	// ChangeModified replaces a known document's contents.
	ChangeModified
	// ChangeRemoved deletes a document. Doc carries only the key.
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// DocumentChange is one (document, kind) tuple from a change batch.
// For ChangeRemoved, Doc.Fields is nil.
type DocumentChange struct {
	Kind ChangeKind
	Doc  *Document
}

// Provenance tags where a change batch originated.
type Provenance int

const (
	// FromCache marks state served from local storage or optimistic local
	// writes; the result may lag the server.
	FromCache Provenance = iota + 1
	// FromServer marks a confirmed server snapshot.
	FromServer
)

func (p Provenance) String() string {
	switch p {
	case FromCache:
		return "cache"
	case FromServer:
		return "server"
	default:
		return "unknown"
	}
}
