package constants

import "time"

const (
	AppName            = "chime"
	Version            = "v0.1.0"
	DefaultKeyringUser = "database-connection"
	DefaultConfigDir   = "~/.config/chime"
	DefaultStorePath   = "~/.config/chime/chime.db"

	// DateFormat is the date format accepted on the command line (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the wall-clock format accepted on the command line (HH:MM)
	TimeFormat = "15:04"

	// ISOFormat is how every date-valued record field is written to storage.
	// Values are always written in UTC so the suffix is "Z".
	ISOFormat = "2006-01-02T15:04:05.000Z07:00"

	// Storage keys
	RemindersKey     = "reminders"
	NotificationsKey = "notifications"

	// Continuous alert escalation
	EscalationInterval = 5 * time.Minute
	EscalationBudget   = 30 * time.Minute
	EscalationGraceMin = 34
	EscalationMinDelay = time.Minute

	// WeekdayScanDays is how many calendar days (today inclusive) a weekday rule looks ahead
	WeekdayScanDays = 8

	// Notify constants
	NotificationTitle      = "Reminder"
	NotifierLockfileName   = "chime-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.chime"
	TrayProcessName        = "chime-tray"
	TraySecretHeader       = "X-Chime-Secret"
	DefaultDeliveryRate    = 5

	// Waker constants
	DefaultSweepSpec   = "@every 1m"
	StoreWatchDebounce = 250 * time.Millisecond
)
