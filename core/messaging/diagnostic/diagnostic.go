// Package diagnostic holds messages that exercise the message bus without
// touching any domain state.
package diagnostic

import (
	"context"
	"fmt"

	"github.com/odpf/salt/log"

	"github.com/raystack/scale/core/messaging"
)

const (
	TypeEcho    = "echo"
	TypeChain   = "chain"
	TypeFailing = "failing"
)

type Echo struct {
	Message string `json:"message"`

	logger log.Logger
}

func NewEcho(message string, logger log.Logger) *Echo {
	return &Echo{Message: message, logger: logger}
}

func (*Echo) Type() string { return TypeEcho }

func (e *Echo) Execute(_ context.Context) (bool, []messaging.Message, error) {
	e.logger.Info("echo: %s", e.Message)
	return true, nil, nil
}

// Chain produces NumMessages echo messages.
type Chain struct {
	NumMessages int `json:"num_messages"`

	logger log.Logger
}

func NewChain(numMessages int, logger log.Logger) *Chain {
	return &Chain{NumMessages: numMessages, logger: logger}
}

func (*Chain) Type() string { return TypeChain }

func (c *Chain) Execute(_ context.Context) (bool, []messaging.Message, error) {
	next := make([]messaging.Message, c.NumMessages)
	for i := range next {
		next[i] = NewEcho(fmt.Sprintf("chain message %d of %d", i+1, c.NumMessages), c.logger)
	}
	return true, next, nil
}

// Failing never succeeds, it stays on the queue until the transport gives
// up on it.
type Failing struct{}

func (*Failing) Type() string { return TypeFailing }

func (*Failing) Execute(_ context.Context) (bool, []messaging.Message, error) {
	return false, nil, nil
}

func Register(registry *messaging.Registry, logger log.Logger) error {
	factories := map[string]messaging.Factory{
		TypeEcho:    func() messaging.Message { return &Echo{logger: logger} },
		TypeChain:   func() messaging.Message { return &Chain{logger: logger} },
		TypeFailing: func() messaging.Message { return &Failing{} },
	}
	for _, t := range []string{TypeEcho, TypeChain, TypeFailing} {
		if err := registry.Register(t, factories[t]); err != nil {
			return err
		}
	}
	return nil
}
