package command

import (
	"context"
)

// MutatingService is the slice of the pool service the command bus needs.
type MutatingService interface {
	MarkAccountError(ctx context.Context, id string, reason string) error
	MarkAccountQuotaExhausted(ctx context.Context, id string, reason string) error
	BanAccount(ctx context.Context, id string, reason string) error
	RecordUsage(ctx context.Context, id string) error
	ReloadPool(ctx context.Context) error
	RefreshAccount(ctx context.Context, id string) error
	CheckAndRefresh(ctx context.Context) error
}

type MarkAccountErrorCommand struct {
	service MutatingService
}

func NewMarkAccountErrorCommand(service MutatingService) *MarkAccountErrorCommand {
	return &MarkAccountErrorCommand{service: service}
}

func (c *MarkAccountErrorCommand) Execute(ctx context.Context, msg MarkAccountErrorMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: account service is required")
	}
	return c.service.MarkAccountError(ctx, msg.AccountID, msg.Reason)
}

type MarkQuotaExhaustedCommand struct {
	service MutatingService
}

func NewMarkQuotaExhaustedCommand(service MutatingService) *MarkQuotaExhaustedCommand {
	return &MarkQuotaExhaustedCommand{service: service}
}

func (c *MarkQuotaExhaustedCommand) Execute(ctx context.Context, msg MarkQuotaExhaustedMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: account service is required")
	}
	return c.service.MarkAccountQuotaExhausted(ctx, msg.AccountID, msg.Reason)
}

type BanAccountCommand struct {
	service MutatingService
}

func NewBanAccountCommand(service MutatingService) *BanAccountCommand {
	return &BanAccountCommand{service: service}
}

func (c *BanAccountCommand) Execute(ctx context.Context, msg BanAccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: account service is required")
	}
	return c.service.BanAccount(ctx, msg.AccountID, msg.Reason)
}

type RecordUsageCommand struct {
	service MutatingService
}

func NewRecordUsageCommand(service MutatingService) *RecordUsageCommand {
	return &RecordUsageCommand{service: service}
}

func (c *RecordUsageCommand) Execute(ctx context.Context, msg RecordUsageMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: account service is required")
	}
	return c.service.RecordUsage(ctx, msg.AccountID)
}

type ReloadPoolCommand struct {
	service MutatingService
}

func NewReloadPoolCommand(service MutatingService) *ReloadPoolCommand {
	return &ReloadPoolCommand{service: service}
}

func (c *ReloadPoolCommand) Execute(ctx context.Context, msg ReloadPoolMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: pool service is required")
	}
	return c.service.ReloadPool(ctx)
}

type RefreshAccountCommand struct {
	service MutatingService
}

func NewRefreshAccountCommand(service MutatingService) *RefreshAccountCommand {
	return &RefreshAccountCommand{service: service}
}

func (c *RefreshAccountCommand) Execute(ctx context.Context, msg RefreshAccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	return c.service.RefreshAccount(ctx, msg.AccountID)
}

type RunRefreshCycleCommand struct {
	service MutatingService
}

func NewRunRefreshCycleCommand(service MutatingService) *RunRefreshCycleCommand {
	return &RunRefreshCycleCommand{service: service}
}

func (c *RunRefreshCycleCommand) Execute(ctx context.Context, msg RunRefreshCycleMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	return c.service.CheckAndRefresh(ctx)
}
