package interview

import (
	"errors"
	"fmt"
)

// ErrInvalidGateTransition is returned for a camera state change the gate
// does not allow.
var ErrInvalidGateTransition = errors.New("invalid camera gate transition")

// GateState is the camera permission state.
type GateState string

const (
	GateIdle       GateState = "idle"
	GateRequesting GateState = "requesting"
	GateGranted    GateState = "granted"
	GateDenied     GateState = "denied"
)

var gateTransitions = map[GateState][]GateState{
	GateIdle:       {GateRequesting},
	GateRequesting: {GateGranted, GateDenied},
	GateDenied:     {GateRequesting},
}

// CameraPermissionGate guards the interview: questions and sampling only run
// once the camera is granted.
type CameraPermissionGate struct {
	state  GateState
	reason string
}

// NewCameraPermissionGate creates a gate in Idle.
func NewCameraPermissionGate() *CameraPermissionGate {
	return &CameraPermissionGate{state: GateIdle}
}

// State returns the current state.
func (g *CameraPermissionGate) State() GateState {
	return g.state
}

// Reason returns why the camera was last denied.
func (g *CameraPermissionGate) Reason() string {
	return g.reason
}

// Open reports whether the camera is granted.
func (g *CameraPermissionGate) Open() bool {
	return g.state == GateGranted
}

// Request moves Idle or Denied to Requesting.
func (g *CameraPermissionGate) Request() error {
	return g.move(GateRequesting, "")
}

// Grant moves Requesting to Granted.
func (g *CameraPermissionGate) Grant() error {
	return g.move(GateGranted, "")
}

// Deny moves Requesting to Denied.
func (g *CameraPermissionGate) Deny(reason string) error {
	return g.move(GateDenied, reason)
}

func (g *CameraPermissionGate) move(to GateState, reason string) error {
	for _, allowed := range gateTransitions[g.state] {
		if allowed == to {
			g.state = to
			g.reason = reason
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidGateTransition, g.state, to)
}
