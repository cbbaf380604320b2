package store

import "time"

// ScheduleKind distinguishes interval jobs from daily HH:MM jobs.
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleDaily    ScheduleKind = "daily"
)

// JobStatus is the scheduler_jobs.status column.
type JobStatus string

const (
	JobIdle    JobStatus = "idle"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// JobRow is the persisted scheduler_jobs row.
type JobRow struct {
	Name          string
	ScheduleKind  ScheduleKind
	IntervalMs    int64
	DailyHHMM     string
	Timezone      string
	LeaseMs       int64
	Status        JobStatus
	NextRunAt     time.Time
	LastRunAt     *time.Time
	FailureCount  int
	LockOwner     string
	LockExpiresAt *time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PolicyStateRow is the singleton-per-session-date autonomy_policy_state row.
type PolicyStateRow struct {
	SessionDate               string
	MinEdgeOverride           *float64
	MaxTradesPerScanOverride  *int
	LeverageCapOverride       *float64
	ObservationOnlyUntil      *time.Time
	Reason                    string
	UpdatedAt                 time.Time
}

// AlertState is the alerts.state column.
type AlertState string

const (
	AlertOpen       AlertState = "open"
	AlertSuppressed AlertState = "suppressed"
	AlertSent       AlertState = "sent"
	AlertResolved   AlertState = "resolved"
)

// AlertRow is the persisted alerts row.
type AlertRow struct {
	ID             string
	DedupeKey      string
	Source         string
	Reason         string
	Severity       string
	Summary        string
	Message        string
	Metadata       string // JSON
	State          AlertState
	OpenedAt       time.Time
	SuppressedAt   *time.Time
	SentAt         *time.Time
	ResolvedAt     *time.Time
	AcknowledgedAt *time.Time
	AcknowledgedBy string
	LastError      string
}

// AlertDeliveryStatus is the alert_deliveries.status column.
type AlertDeliveryStatus string

const (
	DeliveryRetrying AlertDeliveryStatus = "retrying"
	DeliverySent     AlertDeliveryStatus = "sent"
	DeliveryFailed   AlertDeliveryStatus = "failed"
)

// PaperOrderStatus is the paper_perp_orders.status column.
type PaperOrderStatus string

const (
	PaperOrderOpen      PaperOrderStatus = "open"
	PaperOrderFilled    PaperOrderStatus = "filled"
	PaperOrderCancelled PaperOrderStatus = "cancelled"
)

// PaperPositionRow is a paper_perp_positions row.
type PaperPositionRow struct {
	Symbol    string
	Side      string
	Size      float64
	Entry     float64
	Leverage  float64
	UpdatedAt time.Time
}

// PaperOrderRow is a paper_perp_orders row.
type PaperOrderRow struct {
	ID         string
	Symbol     string
	Side       string
	OrderType  string
	Price      *float64
	Size       float64
	ReduceOnly bool
	Status     PaperOrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PaperFillRow is a paper_perp_fills row.
type PaperFillRow struct {
	ID          int64
	OrderID     string
	Symbol      string
	Side        string
	Price       float64
	Size        float64
	Fee         float64
	RealizedPnL float64
	FilledAt    time.Time
}

// PaperBookRow is the singleton paper_perp_book row.
type PaperBookRow struct {
	StartingCash float64
	Cash         float64
	RealizedPnL  float64
	UpdatedAt    time.Time
}

const isoMilli = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMilli)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(isoMilli, s)
}
