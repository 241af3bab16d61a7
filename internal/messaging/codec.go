// Package messaging carries enrichment requests and results over a watermill
// pub/sub: transport selection, payload encoding, publishers, and the router
// that feeds consumed messages to the service layer.
package messaging

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/oklog/ulid/v2"
)

// ErrUnprocessable marks a message that can never be handled, such as an
// undecodable payload. Such messages skip the retry middleware and go
// straight to the poison queue.
var ErrUnprocessable = errors.New("unprocessable message")

var codec = sonic.ConfigStd

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	return codec.Marshal(v)
}

// Unmarshal decodes a JSON payload into v.
func Unmarshal(data []byte, v any) error {
	return codec.Unmarshal(data, v)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a time-sortable ULID string.
func NewMessageID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
