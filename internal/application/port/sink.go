package port

// MessageKind discriminates outbound messages to the presentation layer.
type MessageKind int

const (
	KindSnapshot MessageKind = iota
	KindError
	KindStatus
)

// Message is the only thing the presentation layer ever receives: a flattened
// snapshot of the latest-value cache, a fatal-to-session error, or an
// informational status line.
type Message struct {
	Kind     MessageKind
	Snapshot map[string]float64 // "<symbol>:<field>" -> value, KindSnapshot only
	Text     string             // KindError / KindStatus only
}

func SnapshotMessage(values map[string]float64) Message {
	return Message{Kind: KindSnapshot, Snapshot: values}
}

func ErrorMessage(text string) Message {
	return Message{Kind: KindError, Text: text}
}

func StatusMessage(text string) Message {
	return Message{Kind: KindStatus, Text: text}
}

// Sink receives outbound messages. Injected into the worker, never created by
// it.
type Sink interface {
	Publish(Message) error
}
