//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// avoiding the need for manual naming in the Worker interface.
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

// IUserDirectory resolves account information owned by the external user
// base. The conversation core never stores accounts itself.
type IUserDirectory interface {
	// DisplayName returns the display name for a user id; ok is false when
	// the id cannot be resolved (deleted or never existed).
	DisplayName(userID string) (displayName string, ok bool)
	// IsValidUser reports whether the id resolves to a real account.
	IsValidUser(userID string) bool
}
