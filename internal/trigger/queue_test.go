package trigger

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"claimsync/internal/config"
	"claimsync/internal/domain"
	"claimsync/internal/observability/mocks"
)

// fakeAcknowledger records the ack decision taken for one delivery.
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func newTestConsumer(launcher Launcher) *Consumer {
	return NewConsumer(launcher, config.QueueConfig{Queue: "claimsync.triggers"},
		mocks.NopLogger{}, mocks.NopMetrics{})
}

func delivery(body string, redelivered bool) (amqp.Delivery, *fakeAcknowledger) {
	ack := &fakeAcknowledger{}
	return amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(body),
		Redelivered:  redelivered,
	}, ack
}

func TestQueueProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("valid trigger launches and acks", func(t *testing.T) {
		launcher := &fakeLauncher{}
		consumer := newTestConsumer(launcher)

		msg, ack := delivery(`{"job_type":"download","download_type":"settlement","year":2568,"month":10,"scheme":"UCS"}`, false)
		consumer.process(ctx, msg)

		assert.True(t, ack.acked)
		assert.False(t, ack.nacked)
		assert.Equal(t, "settlement|2568-10|UCS", launcher.gotScopeKey)
	})

	t.Run("malformed payload is dropped without requeue", func(t *testing.T) {
		consumer := newTestConsumer(&fakeLauncher{})

		msg, ack := delivery(`{broken`, false)
		consumer.process(ctx, msg)

		assert.True(t, ack.nacked)
		assert.False(t, ack.requeue)
	})

	t.Run("invalid request is dropped without requeue", func(t *testing.T) {
		launcher := &fakeLauncher{}
		consumer := newTestConsumer(launcher)

		msg, ack := delivery(`{"job_type":"download","download_type":"settlement","year":2568,"month":99,"scheme":"UCS"}`, false)
		consumer.process(ctx, msg)

		assert.True(t, ack.nacked)
		assert.False(t, ack.requeue)
		assert.Nil(t, launcher.launched)
	})

	t.Run("scope conflict is acked as a normal skip", func(t *testing.T) {
		launcher := &fakeLauncher{
			launchErr: domain.E(domain.KindConflict, "supervisor.Create", "scope busy", nil),
		}
		consumer := newTestConsumer(launcher)

		msg, ack := delivery(`{"job_type":"import","download_type":"settlement"}`, false)
		consumer.process(ctx, msg)

		assert.True(t, ack.acked)
		assert.False(t, ack.nacked)
	})

	t.Run("transient failure requeues once", func(t *testing.T) {
		launcher := &fakeLauncher{
			launchErr: domain.E(domain.KindNetwork, "supervisor", "db unavailable", nil),
		}
		consumer := newTestConsumer(launcher)

		msg, ack := delivery(`{"job_type":"import","download_type":"settlement"}`, false)
		consumer.process(ctx, msg)

		assert.True(t, ack.nacked)
		assert.True(t, ack.requeue)
	})

	t.Run("redelivered failure is not requeued again", func(t *testing.T) {
		launcher := &fakeLauncher{
			launchErr: domain.E(domain.KindNetwork, "supervisor", "db unavailable", nil),
		}
		consumer := newTestConsumer(launcher)

		msg, ack := delivery(`{"job_type":"import","download_type":"settlement"}`, true)
		consumer.process(ctx, msg)

		assert.True(t, ack.nacked)
		assert.False(t, ack.requeue)
	})
}
