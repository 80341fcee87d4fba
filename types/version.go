package types

// Version is the canonical otacore version.
// The CLI, IPC frames and journal records all report this value.
const Version = "0.1.0"

// ArtifactFormatVersion is the only artifact container format version
// the parser accepts.
const ArtifactFormatVersion = 3

// ArtifactFormatName is the format identifier carried in the version record.
const ArtifactFormatName = "mender"

// StateScriptVersion is the only state script version accepted from the
// optional version file in the artifact script directory.
const StateScriptVersion = "3"

// RetryExitCode is the exit status a state script uses to ask the caller
// to retry the state transition later.
const RetryExitCode = 21
