package response

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var ErrNotObject = errors.New("response root is not a json object")

// Response is a completed exchange with the Matchable API. The body is kept verbatim
// and parsed once, when the Response is built.
type Response struct {
	StatusCode int

	text     string
	value    interface{}
	parseErr error
}

// Ack is the reply to an action submission
type Ack struct {
	Status string `json:"status"`
}

func New(statusCode int, body []byte) *Response {
	r := &Response{
		StatusCode: statusCode,
		text:       string(body),
	}

	if err := json.Unmarshal(body, &r.value); err != nil {
		r.value = nil
		r.parseErr = fmt.Errorf("malformed response body: %w", err)
	}

	return r
}

// Text returns the body exactly as it was received
func (r *Response) Text() string {
	return r.text
}

func (r *Response) Err() error {
	return r.parseErr
}

// Value is the parsed root: a map, a slice, or a scalar
func (r *Response) Value() interface{} {
	return r.value
}

func (r *Response) Data() (map[string]interface{}, error) {
	if r.parseErr != nil {
		return nil, r.parseErr
	}

	data, ok := r.value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotObject, r.value)
	}
	return data, nil
}

func (r *Response) Get(key string) (interface{}, bool, error) {
	data, err := r.Data()
	if err != nil {
		return nil, false, err
	}

	value, ok := data[key]
	return value, ok, nil
}

func (r *Response) Decode(v interface{}) error {
	if r.parseErr != nil {
		return r.parseErr
	}
	return json.Unmarshal([]byte(r.text), v)
}

// Lookup follows a gjson path (e.g. "recommendations.0.id") through the raw body
func (r *Response) Lookup(path string) gjson.Result {
	return gjson.Get(r.text, path)
}

func (r *Response) Ack() (Ack, error) {
	var ack Ack
	err := r.Decode(&ack)
	return ack, err
}
