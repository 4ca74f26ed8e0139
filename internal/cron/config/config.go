package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Breach sweep, daily at midnight
	CronScheduleBreachSweep string `env:"CRON_SCHEDULE_BREACH_SWEEP" envDefault:"0 0 0 * * *"`
}
