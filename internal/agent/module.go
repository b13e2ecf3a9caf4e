package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/internal/metrics"
	"github.com/johnbachman/bioagents/internal/transport"
	"github.com/johnbachman/bioagents/pkg/kqml"
)

// ErrModuleStopped is returned when a request is submitted to a module
// whose worker has exited.
var ErrModuleStopped = errors.New("agent module stopped")

// DefaultQueueSize is the number of requests that can wait for the worker.
const DefaultQueueSize = 64

// Handler answers the requests of one agent.
type Handler interface {
	// Name is the name the agent registers under.
	Name() string
	// Tasks lists the tasks the agent subscribes to.
	Tasks() []Task
	// HandleRequest returns the reply content for a request. Domain
	// failures are returned as FAILURE content; a non-nil error means the
	// request could not be answered at all.
	HandleRequest(ctx context.Context, task Task, content *kqml.List) (kqml.Object, error)
	// HandleTell processes a tell performative's content.
	HandleTell(ctx context.Context, content *kqml.List)
}

type job struct {
	ctx     context.Context
	content *kqml.List
	tell    bool
	done    func(kqml.Object, error)
}

// Module runs a Handler behind a single worker goroutine. Requests from
// the KQML transport and from Submit are queued and handled one at a time,
// so handlers never run concurrently.
type Module struct {
	handler Handler
	logger  *logrus.Logger
	jobs    chan job
	stopped chan struct{}
}

// NewModule creates a module for handler. Call Run to start the worker.
func NewModule(handler Handler, queueSize int, logger *logrus.Logger) *Module {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Module{
		handler: handler,
		logger:  logger,
		jobs:    make(chan job, queueSize),
		stopped: make(chan struct{}),
	}
}

// Name returns the agent name.
func (m *Module) Name() string {
	return m.handler.Name()
}

// Run processes queued requests until ctx is done. It must be called once.
func (m *Module) Run(ctx context.Context) {
	defer close(m.stopped)
	m.logger.WithField("agent", m.Name()).Info("Agent worker started")
	for {
		select {
		case <-ctx.Done():
			m.logger.WithField("agent", m.Name()).Info("Agent worker stopped")
			return
		case j := <-m.jobs:
			m.process(j)
		}
	}
}

// Submit queues a request content and waits for its reply content.
func (m *Module) Submit(ctx context.Context, content *kqml.List) (kqml.Object, error) {
	type result struct {
		obj kqml.Object
		err error
	}
	ch := make(chan result, 1)
	j := job{ctx: ctx, content: content, done: func(obj kqml.Object, err error) {
		ch <- result{obj, err}
	}}
	if err := m.enqueue(ctx, j); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.obj, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.stopped:
		return nil, ErrModuleStopped
	}
}

func (m *Module) enqueue(ctx context.Context, j job) error {
	select {
	case m.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrModuleStopped
	}
}

func (m *Module) process(j job) {
	if j.tell {
		m.handler.HandleTell(j.ctx, j.content)
		return
	}
	obj, err := m.handle(j.ctx, j.content)
	j.done(obj, err)
}

func (m *Module) handle(ctx context.Context, content *kqml.List) (kqml.Object, error) {
	if content == nil || content.Len() == 0 {
		return nil, domain.NewAgentError(domain.ErrCodeInvalidRequest, "request without content", "", "")
	}
	task, err := ParseTask(content.Head())
	if err != nil || !m.supports(task) {
		return nil, domain.NewAgentError(domain.ErrCodeUnknownTask,
			fmt.Sprintf("unknown request task %s", content.Head()), "", "")
	}

	logger := m.logger.WithFields(logrus.Fields{"agent": m.Name(), "task": task.String()})
	logger.Debug("Handling request")

	done := metrics.TimeRequest(m.Name(), task.String())
	obj, err := m.handler.HandleRequest(ctx, task, content)
	done(outcome(obj, err))
	if err != nil {
		logger.WithError(err).Error("Request failed")
	}
	return obj, err
}

func (m *Module) supports(task Task) bool {
	for _, t := range m.handler.Tasks() {
		if t == task {
			return true
		}
	}
	return false
}

func outcome(obj kqml.Object, err error) string {
	if err != nil {
		return "error"
	}
	if l, ok := obj.(*kqml.List); ok && strings.EqualFold(l.Head(), "FAILURE") {
		return "failure"
	}
	return "success"
}

// Serve registers the agent with the facilitator and answers messages from
// t until the peer closes the stream or ctx is done. Run must be running.
func (m *Module) Serve(ctx context.Context, t transport.Transport) error {
	if err := m.register(t); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := t.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, transport.ErrClosed):
				m.logger.WithField("agent", m.Name()).Info("Connection closed")
				return nil
			case errors.Is(err, kqml.ErrSyntax):
				m.logger.WithError(err).Warn("Skipping malformed message")
				continue
			default:
				return err
			}
		}
		if err := m.dispatch(ctx, t, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// register subscribes to every task of the handler and reports ready.
func (m *Module) register(t transport.Transport) error {
	reg := kqml.NewPerformative("register")
	reg.SetToken("name", m.Name())
	if err := t.WriteMessage(reg); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}

	for _, task := range m.handler.Tasks() {
		pattern, err := kqml.ParseList(fmt.Sprintf("(request &key :content (%s . *))", task))
		if err != nil {
			return err
		}
		sub := kqml.NewPerformative("subscribe")
		sub.Set("content", pattern)
		if err := t.WriteMessage(sub); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", task, err)
		}
	}

	ready := kqml.NewPerformative("tell")
	ready.Set("content", kqml.NewList("module-status", "ready"))
	if err := t.WriteMessage(ready); err != nil {
		return fmt.Errorf("failed to report ready: %w", err)
	}
	m.logger.WithField("agent", m.Name()).Info("Agent registered")
	return nil
}

// dispatch queues requests and tells; other performatives are ignored.
func (m *Module) dispatch(ctx context.Context, t transport.Transport, msg *kqml.List) error {
	content := msg.GetList("content")

	switch strings.ToLower(msg.Head()) {
	case "request":
		replyTo := msg
		return m.enqueue(ctx, job{ctx: ctx, content: content, done: func(obj kqml.Object, err error) {
			if werr := t.WriteMessage(m.reply(replyTo, obj, err)); werr != nil {
				m.logger.WithError(werr).Error("Failed to send reply")
			}
		}})
	case "tell":
		if content == nil {
			return nil
		}
		return m.enqueue(ctx, job{ctx: ctx, content: content, tell: true})
	default:
		m.logger.WithFields(logrus.Fields{"agent": m.Name(), "verb": msg.Head()}).Debug("Ignoring message")
		return nil
	}
}

// reply builds the reply performative for a request: a reply carrying the
// content, or an error performative with a comment.
func (m *Module) reply(request *kqml.List, obj kqml.Object, err error) *kqml.List {
	var msg *kqml.List
	if err != nil {
		msg = kqml.NewPerformative("error")
		msg.Sets("comment", errorComment(err))
	} else {
		msg = kqml.NewPerformative("reply")
		msg.Set("content", obj)
	}

	if sender := request.Get("sender"); sender != nil {
		msg.Set("receiver", sender)
	}
	if replyWith := request.Get("reply-with"); replyWith != nil {
		msg.Set("in-reply-to", replyWith)
	}
	return msg
}

func errorComment(err error) string {
	var agentErr *domain.AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Message
	}
	return err.Error()
}
