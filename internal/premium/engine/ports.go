package engine

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Authority

import (
	"context"

	"premiumblocker/internal/premium/authority"
)

// Authority starts an asynchronous registry lookup and delivers exactly one
// result on the returned channel.
type Authority interface {
	Start(ctx context.Context, username string) <-chan authority.Result
}
