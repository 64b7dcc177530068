package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrMissingType = errors.New("parameter 'type' is required")

// IdentityMode decides which identifier an action carries: the game version or the player id
type IdentityMode string

const (
	ByVersion  IdentityMode = "version"
	ByPlayerId IdentityMode = "player_id"
)

func (m IdentityMode) Valid() bool {
	return m == ByVersion || m == ByPlayerId
}

type Identity struct {
	Mode  IdentityMode
	Value string
}

// Action is a single analytics event. Exactly one of Version or PlayerId is set.
type Action struct {
	PlayerId   *string     `json:"player_id,omitempty"`
	Version    *string     `json:"version,omitempty"`
	Type       string      `json:"type"`
	Parameters interface{} `json:"parameters"`
	Date       int64       `json:"date"`
}

func New(actionType string, parameters interface{}, identity Identity, now time.Time) (*Action, error) {
	if strings.TrimSpace(actionType) == "" {
		return nil, ErrMissingType
	}

	if isNilParameters(parameters) {
		parameters = NewParameters()
	}

	action := &Action{
		Type:       actionType,
		Parameters: parameters,
		Date:       now.UTC().Unix(),
	}

	value := identity.Value
	switch identity.Mode {
	case ByVersion, "":
		action.Version = &value
	case ByPlayerId:
		action.PlayerId = &value
	default:
		return nil, fmt.Errorf("unknown identity mode: %s", identity.Mode)
	}

	return action, nil
}

// Body is the request payload for the actions endpoint: a json array holding only this action
func (a *Action) Body() ([]byte, error) {
	body, err := json.Marshal([]*Action{a})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s action: %w", a.Type, err)
	}
	return body, nil
}

func isNilParameters(parameters interface{}) bool {
	switch p := parameters.(type) {
	case nil:
		return true
	case *Parameters:
		return p == nil
	case map[string]interface{}:
		return p == nil
	default:
		return false
	}
}
