package wake

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Executor is the single async operation a sleeping address's wake
// handler performs (spec.md §6 WakeExecutor): wake(profile) -> success|error.
// It is invoked fire-and-forget from the router's dispatch loop. An error
// is posted back to the dispatch loop and fails the pending call with
// wake_failed; success does nothing on its own — only the woken agent's
// subsequent REGISTER completes the pending call (spec.md §5).
type Executor interface {
	Wake(ctx context.Context, profile Profile) error
}

// WebhookExecutor POSTs {address, handler} to the handler's URL, grounded
// on the go-resty client used elsewhere in the pack for outbound HTTP.
type WebhookExecutor struct {
	client *resty.Client
	log    zerolog.Logger
}

// NewWebhookExecutor builds a WebhookExecutor using a shared resty client.
func NewWebhookExecutor(log zerolog.Logger) *WebhookExecutor {
	return &WebhookExecutor{client: resty.New(), log: log}
}

func (e *WebhookExecutor) Wake(ctx context.Context, profile Profile) error {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"address": profile.Address,
			"handler": map[string]any{
				"url":            profile.Handler.URL,
				"timeoutSeconds": profile.Handler.TimeoutSeconds,
			},
		}).
		Post(profile.Handler.URL)
	if err != nil {
		e.log.Warn().Err(err).Str("address", profile.Address).Msg("wake webhook failed")
		return err
	}
	if resp.IsError() {
		e.log.Warn().Int("status", resp.StatusCode()).Str("address", profile.Address).Msg("wake webhook returned error status")
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// SpawnExecutor forks profile.Handler.Command, mapping a non-zero exit (or
// a deadline exceeded before exit) to an error.
type SpawnExecutor struct {
	log zerolog.Logger
}

// NewSpawnExecutor builds a SpawnExecutor.
func NewSpawnExecutor(log zerolog.Logger) *SpawnExecutor {
	return &SpawnExecutor{log: log}
}

func (e *SpawnExecutor) Wake(ctx context.Context, profile Profile) error {
	cmd := profile.Handler.Command
	if len(cmd) == 0 {
		return fmt.Errorf("spawn handler has no command")
	}
	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	c.Env = append(c.Env, "SYSTEMX_WAKE_ADDRESS="+profile.Address)
	if err := c.Run(); err != nil {
		e.log.Warn().Err(err).Str("address", profile.Address).Msg("wake spawn failed")
		return err
	}
	return nil
}

// NoopExecutor logs and reports success; used in tests and by router.New
// when it is given no executor.
type NoopExecutor struct {
	log zerolog.Logger
}

// NewNoopExecutor builds a NoopExecutor.
func NewNoopExecutor(log zerolog.Logger) *NoopExecutor {
	return &NoopExecutor{log: log}
}

func (e *NoopExecutor) Wake(ctx context.Context, profile Profile) error {
	e.log.Debug().Str("address", profile.Address).Msg("noop wake executor invoked")
	return nil
}

// Dispatcher routes a wake to the executor matching the profile's handler
// kind. It is the Executor the router holds by default.
type Dispatcher struct {
	Webhook Executor
	Spawn   Executor
}

// NewDispatcher builds a Dispatcher with real webhook/spawn executors.
func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Webhook: NewWebhookExecutor(log),
		Spawn:   NewSpawnExecutor(log),
	}
}

func (d *Dispatcher) Wake(ctx context.Context, profile Profile) error {
	switch profile.Handler.Kind {
	case HandlerWebhook:
		return d.Webhook.Wake(ctx, profile)
	case HandlerSpawn:
		return d.Spawn.Wake(ctx, profile)
	default:
		return fmt.Errorf("unknown handler kind for %s", profile.Address)
	}
}
