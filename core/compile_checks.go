package core

var (
	_ AuthenticatorRegistry = (*ProviderRegistry)(nil)
	_ LockStore             = (*MemoryLockStore)(nil)
	_ AlertSink             = NopAlertSink{}
	_ MetricsRecorder       = NopMetricsRecorder{}
	_ ConfigProvider        = (*CfgxConfigProvider)(nil)
	_ OptionsResolver       = GoOptionsResolver{}
	_ RawConfigLoader       = (*YAMLFileLoader)(nil)
	_ RawConfigLoader       = staticRawConfigLoader{}
)
