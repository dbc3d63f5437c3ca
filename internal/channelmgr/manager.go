// Package channelmgr implements the channel manager: the fan-in multiplexer
// that merges every registered channel's stream plus an injection stream
// into one agent-facing stream, and the fan-out router for outbound
// responses, status updates, and broadcasts.
package channelmgr

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/models"
)

// InjectionBufferSize is the default capacity of the injection channel.
const InjectionBufferSize = 64

// BroadcastResult pairs a channel name with the error (nil on success) from
// a broadcast_all attempt on that channel.
type BroadcastResult struct {
	Channel string
	Err     error
}

// Manager owns the channel registry and the merged message stream. The
// registry itself is many-reader/single-writer: writes happen only on
// Add/HotAdd, reads happen on every dispatch.
type Manager struct {
	log *slog.Logger

	mu       sync.RWMutex
	channels map[string]channels.Channel

	injectSender   chan models.IncomingMessage
	injectReceiver chan models.IncomingMessage
	injectTaken    bool
}

// New constructs an empty manager with a buffered injection channel.
func New(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	ch := make(chan models.IncomingMessage, InjectionBufferSize)
	return &Manager{
		log:            log,
		channels:       make(map[string]channels.Channel),
		injectSender:   ch,
		injectReceiver: ch,
	}
}

// Add registers a channel before it has been started.
func (m *Manager) Add(ch channels.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// HotAdd starts ch, registers it, and spawns a goroutine forwarding its
// stream into the injection sender so it joins an already-running merged
// stream.
func (m *Manager) HotAdd(ctx context.Context, ch channels.Channel) error {
	stream, err := ch.Start(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.channels[ch.Name()] = ch
	m.mu.Unlock()

	go func() {
		for {
			select {
			case msg, ok := <-stream:
				if !ok {
					return
				}
				select {
				case m.injectSender <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// InjectSender hands out the shared injection sender; any holder may push a
// synthetic IncomingMessage that will appear in the merged stream.
func (m *Manager) InjectSender() chan<- models.IncomingMessage { return m.injectSender }

// StartAll starts every registered channel. A channel that fails to start
// is logged and skipped; StartAll itself fails only if zero channels
// started. It then fans in every surviving stream plus the injection
// stream into one merged, unbounded-lifetime stream via a non-prioritized
// select over goroutines forwarding into a shared output channel.
func (m *Manager) StartAll(ctx context.Context) (<-chan models.IncomingMessage, error) {
	m.mu.RLock()
	snapshot := make(map[string]channels.Channel, len(m.channels))
	for name, ch := range m.channels {
		snapshot[name] = ch
	}
	m.mu.RUnlock()

	out := make(chan models.IncomingMessage, InjectionBufferSize)
	var wg sync.WaitGroup
	started := 0

	for name, ch := range snapshot {
		stream, err := ch.Start(ctx)
		if err != nil {
			m.log.Warn("channel failed to start", slog.String("channel", name), slog.Any("error", err))
			continue
		}
		started++
		wg.Add(1)
		go func(stream <-chan models.IncomingMessage) {
			defer wg.Done()
			for {
				select {
				case msg, ok := <-stream:
					if !ok {
						return
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(stream)
	}

	if started == 0 {
		close(out)
		return nil, channels.NewChannelError(channels.ErrStartupFailed, "no channel started", nil)
	}

	m.mu.Lock()
	injectReceiver := m.injectReceiver
	alreadyTaken := m.injectTaken
	m.injectTaken = true
	m.mu.Unlock()

	if !alreadyTaken {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case msg, ok := <-injectReceiver:
					if !ok {
						return
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// The merged stream outlives every individual channel: once all feeders
	// (and the injection feeder) finish, close out so consumers see
	// termination instead of blocking forever.
	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// Respond dispatches to the channel named by msg.Channel. A missing channel
// is a hard SendFailed.
func (m *Manager) Respond(ctx context.Context, msg models.IncomingMessage, resp models.OutgoingResponse) error {
	ch, ok := m.lookup(msg.Channel)
	if !ok {
		return channels.NewChannelError(channels.ErrSendFailed, "unknown channel: "+msg.Channel, nil)
	}
	return ch.Respond(ctx, msg, resp)
}

// SendStatus dispatches by name; a missing channel silently drops the
// status since status delivery is best-effort.
func (m *Manager) SendStatus(ctx context.Context, channelName string, status models.StatusUpdate, metadata map[string]any) {
	ch, ok := m.lookup(channelName)
	if !ok {
		return
	}
	if err := ch.SendStatus(ctx, status, metadata); err != nil {
		m.log.Warn("status send failed", slog.String("channel", channelName), slog.Any("error", err))
	}
}

// Broadcast dispatches by name; SendFailed if the channel is missing.
func (m *Manager) Broadcast(ctx context.Context, channelName, userID string, resp models.OutgoingResponse) error {
	ch, ok := m.lookup(channelName)
	if !ok {
		return channels.NewChannelError(channels.ErrSendFailed, "unknown channel: "+channelName, nil)
	}
	return ch.Broadcast(ctx, userID, resp)
}

// BroadcastAll attempts every channel and continues through failures,
// returning the per-channel results (resolves the spec's open question:
// continue rather than short-circuit).
func (m *Manager) BroadcastAll(ctx context.Context, userID string, resp models.OutgoingResponse) []BroadcastResult {
	m.mu.RLock()
	snapshot := make(map[string]channels.Channel, len(m.channels))
	for name, ch := range m.channels {
		snapshot[name] = ch
	}
	m.mu.RUnlock()

	results := make([]BroadcastResult, 0, len(snapshot))
	for name, ch := range snapshot {
		err := ch.Broadcast(ctx, userID, resp)
		results = append(results, BroadcastResult{Channel: name, Err: err})
	}
	return results
}

// HealthCheckAll returns a snapshot of each channel's health.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]error {
	m.mu.RLock()
	snapshot := make(map[string]channels.Channel, len(m.channels))
	for name, ch := range m.channels {
		snapshot[name] = ch
	}
	m.mu.RUnlock()

	out := make(map[string]error, len(snapshot))
	for name, ch := range snapshot {
		out[name] = ch.HealthCheck(ctx)
	}
	return out
}

// ShutdownAll invokes shutdown on every channel; errors are logged but not
// propagated.
func (m *Manager) ShutdownAll(ctx context.Context) {
	m.mu.RLock()
	snapshot := make(map[string]channels.Channel, len(m.channels))
	for name, ch := range m.channels {
		snapshot[name] = ch
	}
	m.mu.RUnlock()

	for name, ch := range snapshot {
		if err := ch.Shutdown(ctx); err != nil {
			m.log.Warn("channel shutdown failed", slog.String("channel", name), slog.Any("error", err))
		}
	}
}

// ChannelNames returns the currently registered channel names.
func (m *Manager) ChannelNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

func (m *Manager) lookup(name string) (channels.Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}
