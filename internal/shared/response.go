package shared

import "encoding/json"

// represents a server response sent to the client
type Response struct {
	Status   string          `json:"status"`             // "OK", "ERROR", "NOT_FOUND", ...
	Key      string          `json:"key,omitempty"`      // echoed for key operations
	Value    json.RawMessage `json:"value,omitempty"`    // only for GET
	Sequence uint64          `json:"sequence,omitempty"` // WAL sequence of the logged mutation
	Error    string          `json:"error,omitempty"`    // error message if Status is "ERROR"
}

// a client write request received by the server
type SetRequestBody struct {
	Value         json.RawMessage `json:"value"`
	TransactionID string          `json:"transaction_id,omitempty"`
}
