package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Command es un cambio optimista: Apply se ve de inmediato, Remote lo confirma y Rollback lo deshace.
type Command struct {
	Name     string
	Apply    func()
	Remote   func(ctx context.Context) error
	Rollback func()
}

var errIncompleteCommand = errors.New("optimistic command requires apply and remote")

// RunOptimistic aplica el cambio local, ejecuta la confirmacion remota y revierte si falla.
func RunOptimistic(ctx context.Context, logger *zap.Logger, cmd Command) error {
	if cmd.Apply == nil || cmd.Remote == nil {
		return errIncompleteCommand
	}
	cmd.Apply()
	if err := cmd.Remote(ctx); err != nil {
		if cmd.Rollback != nil {
			cmd.Rollback()
		}
		if logger != nil {
			logger.Warn("optimistic update rolled back", zap.String("command", cmd.Name), zap.Error(err))
		}
		return err
	}
	return nil
}
