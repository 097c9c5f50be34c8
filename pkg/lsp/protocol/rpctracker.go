package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
)

// RPCMessage is one request, notification or response seen on a
// connection.
type RPCMessage struct {
	Method   string
	Request  *jrpc2.Request
	Response *jrpc2.Response
	Time     time.Time
}

// IsCallback reports whether the message is a request that expects an
// answer.
func (m RPCMessage) IsCallback() bool {
	return m.Request != nil && !m.Request.IsNotification()
}

// RPCTracker keeps every message it is given and fans new ones out to
// subscribers. As a jrpc2.RPCLogger it records a server's traffic.
type RPCTracker struct {
	mu       sync.RWMutex
	messages []RPCMessage
	subs     map[chan RPCMessage]struct{}
	methods  map[string]string // request id -> method
	last     time.Time
}

var _ jrpc2.RPCLogger = (*RPCTracker)(nil)

func NewRPCTracker() *RPCTracker {
	return &RPCTracker{
		subs:    map[chan RPCMessage]struct{}{},
		methods: map[string]string{},
	}
}

func (t *RPCTracker) LogRequest(ctx context.Context, req *jrpc2.Request) {
	t.mu.Lock()
	t.methods[req.ID()] = req.Method()
	t.mu.Unlock()

	t.Track(RPCMessage{Method: req.Method(), Request: req})
}

func (t *RPCTracker) LogResponse(ctx context.Context, rsp *jrpc2.Response) {
	t.mu.RLock()
	method := t.methods[rsp.ID()]
	t.mu.RUnlock()

	t.Track(RPCMessage{Method: method, Response: rsp})
}

// Track stamps msg and stores it. Stamps strictly increase, so a stamp
// can be used as a cursor into the history.
func (t *RPCTracker) Track(msg RPCMessage) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if !now.After(t.last) {
		now = t.last.Add(time.Nanosecond)
	}
	t.last = now
	msg.Time = now

	t.messages = append(t.messages, msg)
	for ch := range t.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Messages returns a copy of the history.
func (t *RPCTracker) Messages() []RPCMessage {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]RPCMessage(nil), t.messages...)
}

// Methods lists the method of every tracked message in order.
func (t *RPCTracker) Methods() []string {
	msgs := t.Messages()
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Method)
	}
	return out
}

// MessagesAfter returns the messages stamped after since that match.
func (t *RPCTracker) MessagesAfter(since time.Time, match func(RPCMessage) bool) []RPCMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []RPCMessage
	for _, m := range t.messages {
		if m.Time.After(since) && match(m) {
			out = append(out, m)
		}
	}
	return out
}

// Subscribe delivers every message tracked from now on until the returned
// func is called. Messages are dropped while the buffer is full.
func (t *RPCTracker) Subscribe(buf int) (<-chan RPCMessage, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan RPCMessage, buf)
	t.subs[ch] = struct{}{}

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, ch)
		close(ch)
	}
}

// WaitFor blocks until count messages stamped after since match. The bool
// is false if timeout passed first; the messages seen so far are returned
// either way.
func (t *RPCTracker) WaitFor(since time.Time, count int, timeout time.Duration, match func(RPCMessage) bool) ([]RPCMessage, bool) {
	// subscribe before reading the history so nothing lands in between
	ch, unsub := t.Subscribe(256)
	defer unsub()

	got := t.MessagesAfter(since, match)
	if len(got) >= count {
		return got, true
	}
	if len(got) > 0 {
		since = got[len(got)-1].Time
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case m := <-ch:
			if !m.Time.After(since) || !match(m) {
				continue
			}
			got = append(got, m)
			since = m.Time
			if len(got) >= count {
				return got, true
			}
		case <-timer.C:
			return got, false
		}
	}
}
