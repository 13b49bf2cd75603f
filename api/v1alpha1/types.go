package v1alpha1

// Action is a server-assigned update job targeting one device. It bundles one
// or more software modules and is immutable once retrieved; its ID identifies
// one update attempt end-to-end.
type Action struct {
	// ID is the server-side identifier of the deployment action.
	ID string `json:"id"`
	// Modules are the software modules to be installed as part of this action.
	Modules []SoftwareModule `json:"modules"`
}

// SoftwareModule is one installable unit of an action.
type SoftwareModule struct {
	ID string `json:"id"`
	// Type routes the module to an updater (e.g. "os", "application").
	Type      string     `json:"type"`
	Name      string     `json:"name"`
	Version   string     `json:"version,omitempty"`
	Artifacts []Artifact `json:"artifacts"`
}

// Artifact is one downloadable file belonging to a software module.
type Artifact struct {
	Name   string `json:"name"`
	Hashes Hashes `json:"hashes"`
	// Size is the declared size in bytes.
	Size int64 `json:"size"`
	// DownloadURL is the locator handed to the protocol client to open the
	// artifact byte stream.
	DownloadURL string `json:"downloadUrl"`
}

// Hashes carries the declared content hashes of an artifact. Md5 is the
// minimum the server guarantees and the one verified after download.
type Hashes struct {
	Sha1 string `json:"sha1,omitempty"`
	Md5  string `json:"md5"`
}

// StatusEntryKind classifies one entry of the server-visible status history.
type StatusEntryKind string

const (
	StatusRetrieved StatusEntryKind = "retrieved"
	StatusRunning   StatusEntryKind = "running"
	StatusDownload  StatusEntryKind = "download"
	StatusFinished  StatusEntryKind = "finished"
	StatusError     StatusEntryKind = "error"
)

// StatusEntry is one ordered, typed record in the status history of an
// action. Entries are append-only and order-significant: the server-visible
// history is exactly the sequence in which entries were produced.
type StatusEntry struct {
	Kind    StatusEntryKind `json:"kind"`
	Details []string        `json:"details,omitempty"`
}

func NewStatusEntry(kind StatusEntryKind, details ...string) StatusEntry {
	return StatusEntry{Kind: kind, Details: details}
}

func NewRetrievedEntry(details ...string) StatusEntry {
	return NewStatusEntry(StatusRetrieved, details...)
}

func NewRunningEntry(details ...string) StatusEntry {
	return NewStatusEntry(StatusRunning, details...)
}

func NewDownloadEntry(details ...string) StatusEntry {
	return NewStatusEntry(StatusDownload, details...)
}

func NewFinishedEntry(details ...string) StatusEntry {
	return NewStatusEntry(StatusFinished, details...)
}

func NewErrorEntry(details ...string) StatusEntry {
	return NewStatusEntry(StatusError, details...)
}

// UpdateResult is returned by an updater and is the sole signal that ends the
// apply phase of a session.
type UpdateResult struct {
	Success bool     `json:"success"`
	Details []string `json:"details,omitempty"`
}
