package clipper

// Result is one clip descriptor produced by a pipeline run. The contents
// are opaque to the session machinery; they round-trip through the store as
// a JSON array.
type Result map[string]any

// ProcessRequest describes one processing job.
type ProcessRequest struct {
	// Source is the channel or VOD URL to pull clips from.
	Source string

	// ClipCount is how many clips to produce. Zero means the default.
	ClipCount int

	// Vertical renders clips in 9:16 format.
	Vertical bool

	// Subtitles burns subtitles into the clips.
	Subtitles bool
}

// Session is the public status projection of one session.
type Session struct {
	SessionID      string
	Status         string
	CreatedAt      float64
	LastActivity   float64
	CurrentStep    string
	Progress       int
	PartialResults []Result
	Outputs        []Result
	Error          string
}

// SessionSummary is one row of the listing surface, newest first.
type SessionSummary struct {
	SessionID    string
	Status       string
	CreatedAt    float64
	ResultsCount int
}

// Counts is the session counts surface.
type Counts struct {
	ActiveSessions     int
	ProcessingSessions int
	CachedSessions     int
}
