package mqtt

// NewSessionWithClient exposes the client factory seam to external tests.
var NewSessionWithClient = newSession
