package port

// Update is one changed topic reported by a refresh pull.
type Update struct {
	TopicID int
	Raw     string
}

// Provider is the push/pull automation surface of the external quote source.
// Implementations live in infrastructure; the relay core only sees this port.
type Provider interface {
	// Start performs the session handshake. notify is invoked by the provider
	// whenever new data is ready to be pulled with RefreshData.
	Start(notify func()) error

	// ConnectData begins streaming one topic under a caller-chosen id.
	// A false result is a refusal, not an error: some symbols are
	// legitimately non-streamable.
	ConnectData(topicID int, field, symbol string) (bool, error)

	// DisconnectData stops streaming the given topic.
	DisconnectData(topicID int) error

	// RefreshData returns every topic whose value changed since the last pull.
	RefreshData() ([]Update, error)

	// Heartbeat probes session liveness.
	Heartbeat() (bool, error)

	// Terminate tears the session down. Best effort.
	Terminate() error
}
