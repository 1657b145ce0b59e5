package config

const (
	// TopicDocumentProcess is the NSQ topic for uploaded documents awaiting processing.
	TopicDocumentProcess = "documents.process"

	// ChannelDocumentWorker is the consumer channel shared by processing workers.
	ChannelDocumentWorker = "document-worker"
)
