package queue

import (
	"encoding/json"
	"fmt"
)

// Every job message carries the correlation id handed out when the job was
// enqueued so that log lines and events can be matched to the request.

type MergeJobMsg struct {
	CorrelationID   string  `json:"correlation_id"`
	IDs             []int64 `json:"ids"`
	PreferredMaster *int64  `json:"preferred_master,omitempty"`
	AddedBy         string  `json:"added_by"`
}

type MergeResourcesJobMsg struct {
	CorrelationID   string  `json:"correlation_id"`
	IDs             []int64 `json:"ids"`
	PreferredMaster *int64  `json:"preferred_master,omitempty"`
	Keep            bool    `json:"keep"`
}

type IsolateJobMsg struct {
	CorrelationID string `json:"correlation_id"`
	ID            int64  `json:"id"`
	AddedBy       string `json:"added_by"`
}

type PruneJobMsg struct {
	CorrelationID string `json:"correlation_id"`
	ID            int64  `json:"id"`
}

type ExportJobMsg struct {
	CorrelationID string  `json:"correlation_id"`
	Roots         []int64 `json:"roots"`
	ContentType   string  `json:"content_type,omitempty"`
	Manifest      bool    `json:"manifest"`
}

// JobEvent is published on the event exchange when a job finishes.
type JobEvent struct {
	CorrelationID string `json:"correlation_id"`
	Queue         string `json:"queue"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	Result        any    `json:"result,omitempty"`
}

// ExportKey is the object key an export job writes its archive to.
func ExportKey(correlationID string) string {
	return fmt.Sprintf("exports/%s.zip", correlationID)
}

func decode[T any](body []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return msg, nil
}
