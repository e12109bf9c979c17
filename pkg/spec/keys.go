package spec

// Flow level configuration keys.
const (
	FlowGroupKey       = "flow.group"
	FlowNameKey        = "flow.name"
	FlowExecutionIDKey = "flow.executionId"
	FlowEdgeIDKey      = "flow.edge.id"

	FlowSourceIdentifierKey      = "gobblin.flow.sourceIdentifier"
	FlowDestinationIdentifierKey = "gobblin.flow.destinationIdentifier"
	FlowPathFinderKey            = "gobblin.flow.pathFinder"
	FlowEncryptKeystoreKey       = "gobblin.flow.encrypt.keystore.location"

	FlowInputDatasetDescriptorPrefix  = "gobblin.flow.input.dataset.descriptor"
	FlowOutputDatasetDescriptorPrefix = "gobblin.flow.output.dataset.descriptor"
)

// Dataset descriptor attributes, relative to a descriptor prefix.
const (
	DatasetPathKey       = "path"
	DatasetFormatKey     = "format"
	DatasetPlatformKey   = "platform"
	DatasetEncryptionKey = "encryption"
)

// Job level configuration keys.
const (
	JobNameKey          = "job.name"
	JobGroupKey         = "job.group"
	JobDescriptionKey   = "job.description"
	JobDependenciesKey  = "job.dependencies"
	JobForkOnConcatKey  = "job.forkOnConcat"
	JobTemplatePathKey  = "job.template"
	JobFromKey          = "from"
	JobToKey            = "to"
	JobSourceFsURIKey   = "source.filebased.fs.uri"
	JobTargetFsURIKey   = "target.filebased.fs.uri"
	JobNameComponentSep = "_"
)
