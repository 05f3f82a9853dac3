package models

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a store lookup found nothing.
var ErrNotFound = errors.New("not found")

// ErrTerminal indicates an attempt to change an exploration in a terminal status.
var ErrTerminal = errors.New("exploration is in a terminal status")

// ErrInvalidTransition indicates an illegal node status change.
var ErrInvalidTransition = errors.New("invalid status transition")

// ConfigError reports an invalid simulation or exploration parameter.
// It is raised before any work runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// ProposalError reports an Action Proposer failure or timeout for one node.
// It is recovered locally: the node simply yields no children.
type ProposalError struct {
	NodeID string
	Err    error
}

func (e *ProposalError) Error() string {
	return fmt.Sprintf("proposal for node %s: %v", e.NodeID, e.Err)
}

func (e *ProposalError) Unwrap() error {
	return e.Err
}

// DeadEndError reports that no child could be produced at a depth.
type DeadEndError struct {
	Depth  int
	Reason string
}

func (e *DeadEndError) Error() string {
	return fmt.Sprintf("dead end: %s at depth %d", e.Reason, e.Depth)
}

// StoreError reports a persistence failure. It is always fatal to a run.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
