// Package archive defines the core types for the archival pipeline:
// the declarative target document, expanded entries, and failure records.
package archive

// Definitions is the `definitions` section of the archive document.
// A scalar value is a fixed variable; a list value is a combinatorial
// axis. The reserved key "base" is itself a template, resolved against
// the other definitions before being exposed as a variable.
type Definitions map[string]any

// Target is one templated entry of the `targets` section. Vars follows
// the same scalar-or-list convention as Definitions, scoped to this
// target only.
type Target struct {
	Destination string         `mapstructure:"destination" json:"destination"`
	URL         string         `mapstructure:"url" json:"url"`
	Vars        map[string]any `mapstructure:"vars" json:"vars,omitempty"`
}

// Entry is one concrete point of the expanded target set. Destination is
// relative to the archive root. Tag carries the value of the grouping
// axis when one was present in the entry's variable context.
type Entry struct {
	Destination string
	URL         string
	Tag         string
}

// EntryOutcome is the terminal outcome of one entry within a run. Every
// processed entry lands in exactly one: skipped when a non-empty artifact
// already exists, otherwise saved or failed.
type EntryOutcome string

// Entry outcomes, used as the metrics outcome label.
const (
	EntrySkipped EntryOutcome = "skipped"
	EntrySaved   EntryOutcome = "saved"
	EntryFailed  EntryOutcome = "failed"
)

// FailureKind classifies per-entry failures. All of them are local to the
// entry; none aborts the run.
type FailureKind string

// Failure taxonomy.
const (
	FailureUnauthorizedDomain FailureKind = "unauthorized_domain"
	FailureFetchFailed        FailureKind = "fetch_failed"
	FailureUnsafePath         FailureKind = "unsafe_path"
	FailureTransformError     FailureKind = "transform_error"
	FailurePersistError       FailureKind = "persist_error"
)

// FailureRecord is accumulated for the duration of one run and discarded
// after the digest is sent.
type FailureRecord struct {
	Identifier string      // url, or group name for group-level failures
	Location   string      // destination path, or group name
	Kind       FailureKind
	Detail     string
}
