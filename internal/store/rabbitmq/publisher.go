package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Retitle jobs flow through three queues: the main queue feeds the worker,
// the retry queue parks a failed job for retryDelay and then dead-letters it
// back to the main queue, and the DLQ holds jobs whose attempts ran out.
// Publisher and worker must declare identical arguments or the broker
// rejects the redeclaration.

const retryDelay = 30 * time.Second

// AttemptsHeader counts deliveries through the retry queue. Absent on the
// first delivery.
const AttemptsHeader = "x-attempts"

func RetryQueue(queue string) string      { return queue + ".retry" }
func DeadLetterQueue(queue string) string { return queue + ".dlq" }

func mainQueueArgs(queue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue(queue),
	}
}

func retryQueueArgs(queue string) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             int32(retryDelay / time.Millisecond),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}

// DeclareTopology declares all three retitle queues on ch.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(DeadLetterQueue(queue), true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(RetryQueue(queue), true, false, false, false, retryQueueArgs(queue)); err != nil {
		return err
	}
	_, err := ch.QueueDeclare(queue, true, false, false, false, mainQueueArgs(queue))
	return err
}

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

type JobMessage struct {
	JobID string `json:"job_id"`
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) PublishJob(ctx context.Context, jobID string) error {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// Attempts reads the delivery attempt counter; zero on first delivery. The
// broker may hand the header back as any integer width.
func Attempts(headers amqp.Table) int {
	switch v := headers[AttemptsHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func bumpAttempts(headers amqp.Table) amqp.Table {
	out := amqp.Table{}
	for k, v := range headers {
		out[k] = v
	}
	out[AttemptsHeader] = int32(Attempts(headers) + 1)
	return out
}

// Retrier parks failed deliveries on the retry queue with the attempt
// counter bumped. The mutex serializes publishes; amqp channels are not safe
// for concurrent use.
type Retrier struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
}

func NewRetrier(ch *amqp.Channel, queue string) *Retrier {
	return &Retrier{ch: ch, queue: queue}
}

func (r *Retrier) Retry(ctx context.Context, d amqp.Delivery) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch.PublishWithContext(cctx,
		"",
		RetryQueue(r.queue),
		false,
		false,
		amqp.Publishing{
			ContentType:  d.ContentType,
			DeliveryMode: amqp.Persistent,
			Headers:      bumpAttempts(d.Headers),
			Body:         d.Body,
			Timestamp:    time.Now(),
		},
	)
}
