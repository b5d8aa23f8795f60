package integrations

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Integration interface {
	Name() string
	Start(ctx context.Context) error // blocks until ctx.Done or its own loop ends
	Stop()                           // idempotent
}

// Deps is what every integration gets at build time.
type Deps struct {
	Log zerolog.Logger
	DB  *gorm.DB
}

type Factory func(deps Deps, raw json.RawMessage) (Integration, error)
