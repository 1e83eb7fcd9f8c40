package channel

import "context"

// Transport opens connections to the push endpoint.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one open push connection.
//
// Read blocks until the next message. It returns an error wrapping
// ErrNormalClosure when the peer closed the connection cleanly; any other
// error is an abnormal close. Write must be safe to call concurrently with Read.
type Conn interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Close() error
}
