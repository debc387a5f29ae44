package models

// CallbackEvent defines the message published for every accepted callback.
// Used across the ingestion core, the messaging layer and the tail worker.
type CallbackEvent struct {
	RequestID         string         `json:"RequestID"`
	Endpoint          string         `json:"Endpoint"`
	SubmissionID      string         `json:"SubmissionID"`
	Status            string         `json:"Status"`
	CompanyUEN        string         `json:"CompanyUEN"`
	ClientIP          string         `json:"ClientIP"`
	Message           string         `json:"Message"`
	ReceivedTimestamp string         `json:"ReceivedTimestamp"` // RFC3339Nano, string for easy JSON serialization
	Payload           map[string]any `json:"Payload"`
}
