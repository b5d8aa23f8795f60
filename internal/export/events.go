package export

// EventKind identifies one step outcome of a sync run. The ordered event
// sequence is the whole contract toward any front-end.
type EventKind int

const (
	EventFetchOK EventKind = iota + 1
	EventFetchFailed
	EventDocumentsOK
	EventDocumentsFailed
	EventPhotosOK
	EventPhotosFailed
	// EventRunFailed is the catch-all for faults no phase claimed; a run
	// always ends with a terminal event instead of an escaped panic.
	EventRunFailed
)

func (k EventKind) String() string {
	switch k {
	case EventFetchOK:
		return "fetch_ok"
	case EventFetchFailed:
		return "fetch_failed"
	case EventDocumentsOK:
		return "documents_ok"
	case EventDocumentsFailed:
		return "documents_failed"
	case EventPhotosOK:
		return "photos_ok"
	case EventPhotosFailed:
		return "photos_failed"
	case EventRunFailed:
		return "run_failed"
	}
	return "unknown"
}

type Event struct {
	Kind EventKind
	// Count is the fetched item count or uploaded photo count.
	Count int
	// Report carries the category CSV on EventDocumentsOK.
	Report string
	// Reason carries the failure detail on *Failed events.
	Reason string
}
