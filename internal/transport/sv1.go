package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// SV1Message is a parsed Stratum V1 JSON-RPC request/notification. ID is nil
// for notifications (server->client pushes with no reply expected).
type SV1Message struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// SV1Response is a JSON-RPC response to a client request.
type SV1Response struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result"`
	Error  interface{} `json:"error"`
}

// SV1Reader reads newline-delimited JSON-RPC messages from an SV1
// connection.
type SV1Reader struct {
	scanner *bufio.Scanner
}

// NewSV1Reader wraps r (typically a *PeekConn) for line-delimited reads.
func NewSV1Reader(r io.Reader) *SV1Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	return &SV1Reader{scanner: s}
}

// Next reads and parses the next line as an SV1Message. Returns io.EOF-class
// errors from the underlying scanner when the stream ends.
func (r *SV1Reader) Next() (*SV1Message, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errEOF
	}
	line := r.scanner.Bytes()
	if len(line) == 0 {
		return r.Next()
	}
	var msg SV1Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("sv1: invalid json-rpc line: %w", err)
	}
	if msg.Method == "" {
		return nil, fmt.Errorf("sv1: message missing method field")
	}
	return &msg, nil
}

var errEOF = fmt.Errorf("sv1: connection closed")

// EncodeSV1 marshals v (an *SV1Response or a notification struct) to a
// newline-terminated JSON line ready to write to the wire.
func EncodeSV1(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// SV1Notification is a server-initiated push with no id field.
type SV1Notification struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// NewNotify builds a mining.notify notification.
func NewNotify(jobID, prevHash, coinbase1, coinbase2 string, merkleBranch []string, version, bits, ntime string, cleanJobs bool) *SV1Notification {
	return &SV1Notification{
		Method: "mining.notify",
		Params: []interface{}{jobID, prevHash, coinbase1, coinbase2, merkleBranch, version, bits, ntime, cleanJobs},
	}
}

// NewSetDifficulty builds a mining.set_difficulty notification.
func NewSetDifficulty(difficulty float64) *SV1Notification {
	return &SV1Notification{Method: "mining.set_difficulty", Params: []interface{}{difficulty}}
}

// NewSubscribeResult builds the result payload for mining.subscribe.
func NewSubscribeResult(id interface{}, subscriptionID, extranonce1 string, extranonce2Size int) *SV1Response {
	return &SV1Response{
		ID: id,
		Result: []interface{}{
			[]interface{}{[]interface{}{"mining.notify", subscriptionID}},
			extranonce1,
			extranonce2Size,
		},
	}
}

// NewBoolResult builds a plain boolean-result response, used for authorize
// and submit replies.
func NewBoolResult(id interface{}, ok bool) *SV1Response {
	return &SV1Response{ID: id, Result: ok}
}

// NewErrorResult builds an error-shaped JSON-RPC response.
func NewErrorResult(id interface{}, code int, message string) *SV1Response {
	return &SV1Response{ID: id, Error: []interface{}{code, message, nil}}
}
