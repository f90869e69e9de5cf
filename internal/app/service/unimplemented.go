package service

import (
	"context"
	"fmt"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
)

// Unimplemented is a registered adapter without a chain implementation.
type Unimplemented struct {
	name string
}

var _ port.Syncer = Unimplemented{}

func NewUnimplemented(name string) Unimplemented { return Unimplemented{name: name} }

func (u Unimplemented) Name() string { return u.name }

func (u Unimplemented) SyncTokens(context.Context) error {
	return fmt.Errorf("%s tokens: %w", u.name, entity.ErrNotImplemented)
}

func (u Unimplemented) SyncHolders(context.Context) error {
	return fmt.Errorf("%s holders: %w", u.name, entity.ErrNotImplemented)
}
