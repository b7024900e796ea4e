package models

import "time"

// SessionStatus represents the current state of a scraping session
type SessionStatus string

const (
	StatusCreated     SessionStatus = "created"
	StatusConfiguring SessionStatus = "configuring"
	StatusRunning     SessionStatus = "running"
	StatusPaused      SessionStatus = "paused"
	StatusCompleted   SessionStatus = "completed"
	StatusFailed      SessionStatus = "failed"
	StatusExpired     SessionStatus = "expired"
)

// Terminal reports whether the status ends a session's lifecycle.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// SessionConfig holds the per-session scraping parameters. Zero values are
// filled from defaults at creation time; partial updates only override the
// fields they set.
type SessionConfig struct {
	RateLimitPerSecond float64 `json:"rateLimitPerSecond,omitempty"`
	MaxRetries         int     `json:"maxRetries,omitempty"`
	RetryDelayMS       int     `json:"retryDelayMs,omitempty"`
	TimeoutSeconds     int     `json:"timeoutSeconds,omitempty"`
	RequestTimeoutMS   int     `json:"requestTimeoutMs,omitempty"`
	UserAgent          string  `json:"userAgent,omitempty"`
	RenderJS           bool    `json:"renderJs,omitempty"`
	FollowRedirects    bool    `json:"followRedirects,omitempty"`
}

// MemorySnapshot is one point-in-time process memory reading.
type MemorySnapshot struct {
	TakenAt        time.Time `json:"takenAt"`
	UsedBytes      uint64    `json:"usedBytes"`
	AvailableBytes uint64    `json:"availableBytes"`
}

// PerformanceMetrics are rolling throughput figures derived from the
// progress counters.
type PerformanceMetrics struct {
	PagesPerMinute  float64          `json:"pagesPerMinute"`
	SuccessRate     float64          `json:"successRate"`
	MemorySnapshots []MemorySnapshot `json:"memorySnapshots,omitempty"`
}

// QualityMetrics aggregates per-record quality scores at session level.
type QualityMetrics struct {
	AverageScore    float64 `json:"averageScore"`
	RecordsAssessed int     `json:"recordsAssessed"`
}

// ProgressTracker carries the counters for one session. It is mutated only
// through the session registry's UpdateProgress entry point.
type ProgressTracker struct {
	TotalPages          int                `json:"totalPages"`
	ProcessedPages      int                `json:"processedPages"`
	SuccessfulPages     int                `json:"successfulPages"`
	FailedPages         int                `json:"failedPages"`
	DataPointsExtracted int                `json:"dataPointsExtracted"`
	ErrorsEncountered   int                `json:"errorsEncountered"`
	LastUpdate          time.Time          `json:"lastUpdate"`
	Performance         PerformanceMetrics `json:"performance"`
	Quality             QualityMetrics     `json:"quality"`
}

// SessionMetadata is free-form descriptive information about a session.
type SessionMetadata struct {
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	DurationMS  int64      `json:"durationMs,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Description string     `json:"description,omitempty"`
	Environment string     `json:"environment,omitempty"`
}

// SessionData is the in-memory data store embedded in a session: the raw
// buffer fed by scraping plus the processed and aggregated results written
// back by the pipeline. Nothing here survives the process.
type SessionData struct {
	Raw        []RawRecord       `json:"raw,omitempty"`
	Processed  []ProcessedRecord `json:"processed,omitempty"`
	Aggregated []AggregatedData  `json:"aggregated,omitempty"`
}

// Session is one bounded unit of scraping work. ExpiresAt is fixed at
// creation (CreatedAt + TimeoutSeconds) and is never extended by activity.
type Session struct {
	ID         string          `json:"id"`
	Config     SessionConfig   `json:"config"`
	Progress   ProgressTracker `json:"progress"`
	Data       SessionData     `json:"data"`
	Metadata   SessionMetadata `json:"metadata"`
	Status     SessionStatus   `json:"status"`
	ConnectURL string          `json:"connectUrl,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// CreateSessionRequest is the payload for creating a new session
type CreateSessionRequest struct {
	Config      *SessionConfig `json:"config,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}
