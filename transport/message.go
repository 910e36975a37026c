package transport

// Envelope is one raised event as it travels between processes. Parameters is
// nil when the event carries no payload; otherwise it holds a value of one of
// the types registered with the codec's registry.
type Envelope struct {
	EventID         string
	SequenceNumber  uint64
	ServerName      string
	ApplicationName string
	Parameters      any
}

// Origin identifies the process that raised an event.
type Origin struct {
	ServerName      string
	ApplicationName string
}

// Origin returns the (server, application) pair the envelope was raised by.
func (e Envelope) Origin() Origin {
	return Origin{ServerName: e.ServerName, ApplicationName: e.ApplicationName}
}

// IsZero reports whether the envelope carries no event at all.
func (e Envelope) IsZero() bool {
	return e.EventID == "" && e.SequenceNumber == 0 && e.ServerName == "" &&
		e.ApplicationName == "" && e.Parameters == nil
}
