package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[MarkAccountErrorMessage]   = (*MarkAccountErrorCommand)(nil)
	_ gocmd.Commander[MarkQuotaExhaustedMessage] = (*MarkQuotaExhaustedCommand)(nil)
	_ gocmd.Commander[BanAccountMessage]         = (*BanAccountCommand)(nil)
	_ gocmd.Commander[RecordUsageMessage]        = (*RecordUsageCommand)(nil)
	_ gocmd.Commander[ReloadPoolMessage]         = (*ReloadPoolCommand)(nil)
	_ gocmd.Commander[RefreshAccountMessage]     = (*RefreshAccountCommand)(nil)
	_ gocmd.Commander[RunRefreshCycleMessage]    = (*RunRefreshCycleCommand)(nil)
)
