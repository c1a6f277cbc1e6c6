package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the lifecycle position of one live session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConfiguring
	StateActive
	StateClosing
	StateClosed
)

var stateNames = [...]string{"idle", "connecting", "configuring", "active", "closing", "closed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", name)
}

// Connected reports whether the state holds an open connection.
func (s State) Connected() bool {
	return s == StateConfiguring || s == StateActive
}

var transitions = map[State][]State{
	StateIdle:        {StateConnecting},
	StateConnecting:  {StateConfiguring, StateClosing},
	StateConfiguring: {StateActive, StateClosing},
	StateActive:      {StateClosing},
	StateClosing:     {StateClosed},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is the record of one connection lifetime. A reconnect creates a new one.
type Session struct {
	ID                string    `json:"session_id"`
	State             State     `json:"state"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at,omitzero"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	TurnCount         int       `json:"turn_count"`
	InterruptionCount int       `json:"interruption_count"`
	ToolCallCount     int       `json:"tool_call_count"`
	EndReason         string    `json:"end_reason,omitempty"`
}
