package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/grounded-rag/internal/infrastructure/resilience"
)

const defaultQueueGroup = "grag-workers"

// Queue carries document ids from the upload path to ingestion workers.
type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	executor   *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	options = options.normalize()
	conn, err := nats.Connect(
		url,
		nats.Name("grounded-rag"),
		nats.Timeout(options.ConnectTimeout),
		nats.ReconnectWait(options.ReconnectWait),
		nats.MaxReconnects(options.MaxReconnects),
		nats.RetryOnFailedConnect(*options.RetryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		queueGroup: options.QueueGroup,
		executor:   options.ResilienceExecutor,
	}, nil
}

func (o Options) normalize() Options {
	out := o
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 2 * time.Second
	}
	if out.ReconnectWait <= 0 {
		out.ReconnectWait = 2 * time.Second
	}
	if out.MaxReconnects <= 0 {
		out.MaxReconnects = 60
	}
	if out.RetryOnFailedConnect == nil {
		retry := true
		out.RetryOnFailedConnect = &retry
	}
	if strings.TrimSpace(out.QueueGroup) == "" {
		out.QueueGroup = defaultQueueGroup
	}
	return out
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Ping reports whether the connection is currently usable.
func (q *Queue) Ping(_ context.Context) error {
	if q.conn == nil || !q.conn.IsConnected() {
		return domainTemporary("nats ping", nats.ErrDisconnected)
	}
	return nil
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, documentID string) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, []byte(documentID)); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if err := q.executor.Execute(ctx, "nats.publish", call, classifyNATSError); err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeDocumentIngested blocks until ctx is done, then drains the subscription.
// Members of the queue group share the subject, so each document is processed by one worker.
func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		documentID := strings.TrimSpace(string(msg.Data))
		if documentID == "" {
			slog.Warn("nats_empty_message", "subject", msg.Subject)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, documentID); err != nil {
			slog.Error("worker_handler_error", "document_id", documentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
