package limiter

import (
	"context"
	"time"

	types "github.com/desain-gratis/devicehub/types/http"
)

// Counts poll requests per caller inside a rolling window.
// Implementation needs to be aware of distributed system nature.
type Repository interface {
	Get(ctx context.Context, callerID, key string) (counter int, remaining time.Duration, err *types.CommonError)
	Increment(ctx context.Context, callerID, key string, expiry time.Duration) (err *types.CommonError)
}

type unlimited struct{}

func NewUnlimited() *unlimited {
	return &unlimited{}
}

func (u *unlimited) Get(ctx context.Context, callerID, key string) (counter int, remaining time.Duration, err *types.CommonError) {
	return 0, 0, nil
}

func (u *unlimited) Increment(ctx context.Context, callerID, key string, expiry time.Duration) (err *types.CommonError) {
	return nil
}
