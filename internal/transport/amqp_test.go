package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type closeLog struct {
	mu    sync.Mutex
	order []string
}

func (l *closeLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
}

type fakeConn struct {
	log *closeLog
	err error
}

func (f *fakeConn) Close() error {
	f.log.add("conn")
	return f.err
}

type fakeChannel struct {
	log *closeLog
	err error
}

func (f *fakeChannel) QueueDeclare(string, bool, bool, bool, bool, amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{}, nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChannel) PublishWithContext(context.Context, string, string, bool, bool, amqp.Publishing) error {
	return nil
}

func (f *fakeChannel) Close() error {
	f.log.add("channel")
	return f.err
}

func TestAMQPConnectReleasesStaleSession(t *testing.T) {
	log := &closeLog{}
	c := NewAMQP("amqp://guest:guest@"+freeAddr(t)+"/", 500*time.Millisecond, nil)
	c.conn = &fakeConn{log: log}
	c.channel = &fakeChannel{log: log}

	err := c.Connect(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "amqp connect")

	require.Equal(t, []string{"channel", "conn"}, log.order)
	require.Nil(t, c.conn)
	require.Nil(t, c.channel)
	require.False(t, c.IsConnected())
	require.ErrorIs(t, c.Publish(context.Background(), "bess/leituras/simulador", []byte("{}")), ErrNotConnected)
}

func TestAMQPCloseIgnoresAlreadyClosed(t *testing.T) {
	log := &closeLog{}
	boom := errors.New("socket reset")
	c := NewAMQP("amqp://localhost/", 0, nil)
	c.conn = &fakeConn{log: log, err: boom}
	c.channel = &fakeChannel{log: log, err: amqp.ErrClosed}
	c.connected.Store(true)

	err := c.Close()
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, amqp.ErrClosed)
	require.Equal(t, []string{"channel", "conn"}, log.order)
	require.False(t, c.IsConnected())
	require.NoError(t, c.Close())
}
