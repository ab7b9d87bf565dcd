package tools

// ImageBuild describes one image-builder invocation.
type ImageBuild struct {
	Recipe     string // Dockerfile path
	ContextDir string // directory build context
	ContextTar string // deterministic archive piped as the context instead
	Target     string
	Platform   string // empty = host platform
	BuildArgs  map[string]string
	Tag        string
	Epoch      string // SOURCE_DATE_EPOCH value for reproducible builds, "" otherwise
	OCIOutput  string // write an OCI-layout archive here instead of loading the image
}

// Archive describes one deterministic-archiver invocation. Members come
// from the manifest, one relative path per line, already sorted.
type Archive struct {
	Root     string // directory the member paths are relative to
	Manifest string
	Output   string
}

// Assemble describes one kernel/rootfs assembler invocation.
type Assemble struct {
	Config    string // generated service-list YAML
	ImportTar string // OCI archive imported into the assembler cache first, may be empty
	Output    string // tar bundle
}

// Compress describes one filesystem-compressor invocation: a tar stream
// or a directory tree in, one read-only image out.
type Compress struct {
	InputTar string // tar bundle streamed on stdin
	InputDir string // directory tree, used when InputTar is empty
	Output   string
	Epoch    string // fixed filesystem timestamp
}

// Snapshot describes a verifiable-machine run to its execution bound.
// The machine stores its state under SnapshotDir, including the state-hash
// file.
type Snapshot struct {
	RootfsImage string
	BootArgs    string
	Memory      string
	MaxCycles   string // fixed execution bound
	SnapshotDir string
}

// Seal describes an integrity-tree format operation over an image, with
// the tree appended at HashOffset.
type Seal struct {
	Image      string
	HashOffset int64
	Salt       string // hex
	UUID       string
}

// Verify describes an integrity-tree verification against a known root.
type Verify struct {
	Image      string
	HashOffset int64
	RootHash   string
}

// Deployment describes a compose stand-up from a generated file.
type Deployment struct {
	Project     string // compose project name
	ComposeFile string
}

// WorkloadInfo reports the live workload service, used to recover the
// running environment.
type WorkloadInfo struct {
	Running bool
	Service string // compose service name that matched
	Image   string
	Command string // launch command, space-joined
}
