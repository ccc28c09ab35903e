// Package bridge implements the provider port against a local RTD bridge, a
// helper process that fronts the desktop quote application and exposes its
// push/pull automation surface as JSON frames over a websocket.
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"rtdrelay/internal/application/port"
)

var (
	ErrNotConnected = errors.New("bridge is not connected")
	ErrCallTimeout  = errors.New("bridge call timed out")
)

type Config struct {
	URL          string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	CallTimeout  time.Duration
}

// frame is the bridge wire format. Requests carry a caller-chosen id; the
// bridge echoes it on the reply. Unsolicited "update" frames have no id.
type frame struct {
	ID      int64         `json:"id,omitempty"`
	Op      string        `json:"op"`
	Topic   int           `json:"topic,omitempty"`
	Field   string        `json:"field,omitempty"`
	Symbol  string        `json:"symbol,omitempty"`
	OK      bool          `json:"ok,omitempty"`
	Error   string        `json:"error,omitempty"`
	Updates []updateFrame `json:"updates,omitempty"`
}

type updateFrame struct {
	Topic int    `json:"topic"`
	Value string `json:"value"`
}

// Provider is a port.Provider speaking to the RTD bridge. One Provider per
// session; after Terminate it cannot be reused.
type Provider struct {
	cfg Config

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.Mutex
	pending map[int64]chan frame
	notify  func()
	closed  bool

	done   chan struct{}
	nextID atomic.Int64
}

func New(cfg Config) *Provider {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 3 * time.Second
	}
	return &Provider{
		cfg:     cfg,
		pending: make(map[int64]chan frame),
		done:    make(chan struct{}),
	}
}

// Start dials the bridge and performs the session handshake. notify is
// invoked on every unsolicited update push.
func (p *Provider) Start(notify func()) error {
	dialer := websocket.Dialer{HandshakeTimeout: p.cfg.DialTimeout}
	conn, _, err := dialer.Dial(p.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", p.cfg.URL, err)
	}

	p.mu.Lock()
	p.notify = notify
	p.mu.Unlock()
	p.conn = conn

	go p.readLoop()

	reply, err := p.call(frame{Op: "start"})
	if err != nil {
		return fmt.Errorf("start handshake: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("start rejected by bridge: %s", reply.Error)
	}

	log.Debug().Str("url", p.cfg.URL).Msg("bridge session started")
	return nil
}

func (p *Provider) ConnectData(topicID int, field, symbol string) (bool, error) {
	reply, err := p.call(frame{Op: "connect", Topic: topicID, Field: field, Symbol: symbol})
	if err != nil {
		return false, err
	}
	return reply.OK, nil
}

func (p *Provider) DisconnectData(topicID int) error {
	reply, err := p.call(frame{Op: "disconnect", Topic: topicID})
	if err != nil {
		return err
	}
	if !reply.OK {
		return fmt.Errorf("disconnect topic %d refused: %s", topicID, reply.Error)
	}
	return nil
}

func (p *Provider) RefreshData() ([]port.Update, error) {
	reply, err := p.call(frame{Op: "refresh"})
	if err != nil {
		return nil, err
	}
	if !reply.OK {
		return nil, fmt.Errorf("refresh refused: %s", reply.Error)
	}
	updates := make([]port.Update, 0, len(reply.Updates))
	for _, u := range reply.Updates {
		updates = append(updates, port.Update{TopicID: u.Topic, Raw: u.Value})
	}
	return updates, nil
}

func (p *Provider) Heartbeat() (bool, error) {
	reply, err := p.call(frame{Op: "heartbeat"})
	if err != nil {
		return false, err
	}
	return reply.OK, nil
}

// Terminate ends the session and closes the connection. Best effort: a dead
// bridge must not block teardown.
func (p *Provider) Terminate() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)

	if p.conn == nil {
		return nil
	}
	if err := p.write(frame{Op: "terminate"}); err != nil {
		log.Debug().Err(err).Msg("terminate frame not delivered")
	}
	return p.conn.Close()
}

// call sends a request frame and waits for the matching reply.
func (p *Provider) call(req frame) (frame, error) {
	if p.conn == nil {
		return frame{}, ErrNotConnected
	}

	id := p.nextID.Add(1)
	req.ID = id
	ch := make(chan frame, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return frame{}, ErrNotConnected
	}
	p.pending[id] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if err := p.write(req); err != nil {
		return frame{}, err
	}

	timer := time.NewTimer(p.cfg.CallTimeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return frame{}, fmt.Errorf("%w: op %s", ErrCallTimeout, req.Op)
	case <-p.done:
		return frame{}, ErrNotConnected
	}
}

func (p *Provider) write(f frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	return p.conn.WriteJSON(f)
}

func (p *Provider) readLoop() {
	for {
		var f frame
		if err := p.conn.ReadJSON(&f); err != nil {
			select {
			case <-p.done:
			default:
				log.Warn().Err(err).Msg("bridge read failed")
			}
			return
		}

		if f.Op == "update" && f.ID == 0 {
			p.mu.Lock()
			notify := p.notify
			p.mu.Unlock()
			if notify != nil {
				// The callback pulls RefreshData over this same connection,
				// so it must not run on the read loop.
				go notify()
			}
			continue
		}

		p.mu.Lock()
		ch, ok := p.pending[f.ID]
		p.mu.Unlock()
		if !ok {
			log.Debug().Int64("id", f.ID).Str("op", f.Op).Msg("reply for unknown call dropped")
			continue
		}
		ch <- f
	}
}
