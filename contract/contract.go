//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"collab-hub/domain"
	"collab-hub/domain/envelope"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Authenticator resolves a transport credential to a stable identity.
// Any error means the connection never opens.
type Authenticator interface {
	Resolve(ctx context.Context, credential string) (domain.Identity, error)
}

// Transport is one bidirectional frame stream with a client.
// Read blocks until a frame arrives or the transport is closed.
// Write and Ping may be called from one goroutine at a time.
type Transport interface {
	Read() ([]byte, error)
	Write(frame []byte) error
	Ping() error
	Close(reason error) error
	RemoteAddr() string
}

// EnvelopeSink receives accepted room envelopes after fan-out.
type EnvelopeSink interface {
	Consume(ctx context.Context, env envelope.Envelope) error
}
