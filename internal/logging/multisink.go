package logging

// MultiSink fans out events to a primary file sink and an optional
// secondary remote sink. File errors are returned to the caller; remote
// errors are swallowed (RemoteSink already never returns a network
// error) so a disconnected aggregator can never fail an export or
// analysis run.
type MultiSink struct {
	file   Sink
	remote Sink
}

// NewMultiSink wraps file (required) and remote (optional, may be nil).
func NewMultiSink(file Sink, remote Sink) *MultiSink {
	return &MultiSink{file: file, remote: remote}
}

func (m *MultiSink) Log(ev Event) error {
	if m.remote != nil {
		m.remote.Log(ev)
	}
	return m.file.Log(ev)
}

func (m *MultiSink) Close() error {
	if m.remote != nil {
		m.remote.Close()
	}
	return m.file.Close()
}
