// Package dappool is the DAP bridge's thin equivalent of internal/pool:
// DAP has no per-language routing table (§4.4 — "only a fixed palette of
// tools exists"), just one configured adapter command with an optional
// per-call override, so a single-slot create-on-demand/restart-on-
// mismatch helper is enough.
package dappool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeerr"
	"github.com/codex-bridges/mcp-bridges/internal/dapclient"
)

// Pool owns the single debug-adapter helper (or several, if callers use
// distinct override commands — each resolved command line gets its own
// helper, same rule as internal/pool).
type Pool struct {
	mu sync.Mutex

	managers       map[string]*dapclient.Client
	defaultCommand string
	logger         *zap.Logger
	notifySink     dapclient.NotifySink
}

func New(defaultCommand string, logger *zap.Logger, sink dapclient.NotifySink) *Pool {
	return &Pool{
		managers:       map[string]*dapclient.Client{},
		defaultCommand: defaultCommand,
		logger:         logger,
		notifySink:     sink,
	}
}

// ResolveCommand: explicit override, else the configured default, else
// "no server registered".
func (p *Pool) ResolveCommand(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p.defaultCommand != "" {
		return p.defaultCommand, nil
	}
	return "", bridgeerr.ConfigMissing("no DAP adapter command registered")
}

func (p *Pool) ClientFor(resolved string) *dapclient.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.managers[resolved]; ok {
		return c
	}
	c := dapclient.New(resolved, p.logger, p.notifySink)
	p.managers[resolved] = c
	return c
}

func (p *Pool) ShutdownAll(ctx context.Context) error {
	p.mu.Lock()
	managers := make([]*dapclient.Client, 0, len(p.managers))
	for _, c := range p.managers {
		managers = append(managers, c)
	}
	p.managers = map[string]*dapclient.Client{}
	p.mu.Unlock()

	var first error
	for _, c := range managers {
		if err := c.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
