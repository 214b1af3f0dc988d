package command

import (
	"fmt"
	"strings"
)

const (
	TypeMarkAccountError   = "credpool.command.account.mark_error"
	TypeMarkQuotaExhausted = "credpool.command.account.mark_quota_exhausted"
	TypeBanAccount         = "credpool.command.account.ban"
	TypeRecordUsage        = "credpool.command.account.record_usage"
	TypeReloadPool         = "credpool.command.pool.reload"
	TypeRefreshAccount     = "credpool.command.refresh.account"
	TypeRunRefreshCycle    = "credpool.command.refresh.cycle"
)

type MarkAccountErrorMessage struct {
	AccountID string
	Reason    string
}

func (MarkAccountErrorMessage) Type() string { return TypeMarkAccountError }

func (m MarkAccountErrorMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	return nil
}

type MarkQuotaExhaustedMessage struct {
	AccountID string
	Reason    string
}

func (MarkQuotaExhaustedMessage) Type() string { return TypeMarkQuotaExhausted }

func (m MarkQuotaExhaustedMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	return nil
}

type BanAccountMessage struct {
	AccountID string
	Reason    string
}

func (BanAccountMessage) Type() string { return TypeBanAccount }

func (m BanAccountMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	if strings.TrimSpace(m.Reason) == "" {
		return fmt.Errorf("command: ban reason is required")
	}
	return nil
}

type RecordUsageMessage struct {
	AccountID string
}

func (RecordUsageMessage) Type() string { return TypeRecordUsage }

func (m RecordUsageMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	return nil
}

type ReloadPoolMessage struct{}

func (ReloadPoolMessage) Type() string { return TypeReloadPool }

func (ReloadPoolMessage) Validate() error { return nil }

type RefreshAccountMessage struct {
	AccountID string
}

func (RefreshAccountMessage) Type() string { return TypeRefreshAccount }

func (m RefreshAccountMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	return nil
}

type RunRefreshCycleMessage struct{}

func (RunRefreshCycleMessage) Type() string { return TypeRunRefreshCycle }

func (RunRefreshCycleMessage) Validate() error { return nil }
