package executions

import (
	"context"
	"strings"
	"time"
)

// Record is the stored outcome of one test execution, keyed by session.
type Record struct {
	SessionID    string     `db:"chat_id" json:"sessionId"`
	Stdout       string     `db:"stdout" json:"stdout"`
	Stderr       string     `db:"stderr" json:"stderr,omitempty"`
	ReturnCode   *int       `db:"return_code" json:"returnCode,omitempty"`
	ResultStatus string     `db:"result_status" json:"resultStatus,omitempty"`
	SignedURL    string     `db:"signed_url" json:"signedUrl,omitempty"`
	ArtifactKey  string     `db:"artifact_key" json:"artifactKey,omitempty"`
	Artifacts    []string   `db:"artifacts" json:"artifacts"`
	ResultsAt    *time.Time `db:"results_at" json:"resultsAt,omitempty"`
}

// Ready reports whether the executor has reported both output and
// artifacts, which is what ends polling.
func (r *Record) Ready() bool {
	return r != nil && strings.TrimSpace(r.Stdout) != "" && len(r.Artifacts) > 0
}

// Store reads execution records. Record returns (nil, nil) when the session
// has no record yet.
type Store interface {
	Record(ctx context.Context, sessionID string) (*Record, error)
}

// Trigger asks the executor to start running a session's tests.
type Trigger interface {
	Start(ctx context.Context, sessionID string) error
}

// Publisher sends lifecycle notifications. *bus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}
