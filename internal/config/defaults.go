package config

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

const (
	defaultConfigPath           = "~/.config/curator/config.toml"
	defaultDataDir              = "~/.local/share/curator"
	defaultLogDir               = "~/.local/share/curator/logs"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultQueueBackend         = BackendSQLite
	defaultQueueMaxAttempts     = 3
	defaultQueueLockTimeout     = 600
	defaultErrorMessageLimit    = 500
	defaultQueueListLimit       = 50
	defaultWorkerCount          = 1
	defaultWorkerPollInterval   = 5
	defaultWorkerStopTimeout    = 10
	defaultWorkerReportTimeout  = 30
	defaultAnalysisTimeout      = 900
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultStatsSchedule        = "@every 5m"
	postgresEnvPrefix           = "CURATOR_PG_"
	postgresURLEnv              = "CURATOR_POSTGRES_URL"
	analysisAPIKeyEnv           = "CURATOR_ANALYSIS_API_KEY"
	maxConfigurableWorkerCount  = 64
	maxConfigurableErrorMessage = 10000
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Queue: Queue{
			Backend:           defaultQueueBackend,
			MaxAttempts:       defaultQueueMaxAttempts,
			LockTimeout:       defaultQueueLockTimeout,
			ErrorMessageLimit: defaultErrorMessageLimit,
			ListLimit:         defaultQueueListLimit,
		},
		Worker: Worker{
			Count:         defaultWorkerCount,
			PollInterval:  defaultWorkerPollInterval,
			StopTimeout:   defaultWorkerStopTimeout,
			ReportTimeout: defaultWorkerReportTimeout,
		},
		Analysis: Analysis{
			TimeoutSeconds: defaultAnalysisTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			StatsSchedule: defaultStatsSchedule,
		},
	}
}
