package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/streamops/streamops/internal/testutil"
	"github.com/streamops/streamops/pkg/api"
)

const testPrefix = "streamops:test:"

type RedisBusTestSuite struct {
	suite.Suite
	endpoint string
	client   *redis.Client
	ctx      context.Context
}

func TestRedisBusSuite(t *testing.T) {
	s := new(RedisBusTestSuite)
	s.endpoint = testutil.GetRedisAddress(t)
	initRedisBusSuite(t, s)
	suite.Run(t, s)
}

func initRedisBusSuite(t *testing.T, s *RedisBusTestSuite) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: s.endpoint})
	s.client = client
	s.ctx = context.Background()

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })
}

func (s *RedisBusTestSuite) SetupTest() {
	keys, err := s.client.Keys(s.ctx, testPrefix+"*").Result()
	s.Require().NoError(err)
	if len(keys) > 0 {
		s.Require().NoError(s.client.Del(s.ctx, keys...).Err())
	}
}

func (s *RedisBusTestSuite) TestPublishBeforeConnect() {
	p := NewRedisProducer(s.client, testPrefix, 2)

	env, err := api.NewEnvelope("test", api.EventWorkflowCreated, nil)
	s.Require().NoError(err)

	err = p.Publish(s.ctx, api.TopicWorkflows, "wf-1", env)
	s.Require().Equal(api.ErrCodeBusNotConnected, api.ErrorCode(err))
}

func (s *RedisBusTestSuite) TestPerKeyOrderingThroughGroup() {
	p := NewRedisProducer(s.client, testPrefix, 4)
	s.Require().NoError(p.Connect(s.ctx))
	defer func() { _ = p.Disconnect() }()

	const perKey = 10
	keys := []string{"wf-a", "wf-b"}

	var mu sync.Mutex
	got := make(map[string][]int)
	done := make(chan struct{})
	total := 0

	c := NewRedisConsumer(s.client, testPrefix, 4, "consumer-1", ConsumerConfig{})
	c.Handle(api.TopicWorkflows, func(ctx context.Context, env api.Envelope) error {
		var payload struct {
			Key string `json:"key"`
			Seq int    `json:"seq"`
		}
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		mu.Lock()
		got[payload.Key] = append(got[payload.Key], payload.Seq)
		total++
		if total == perKey*len(keys) {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	s.Require().NoError(c.Subscribe(s.ctx, []string{api.TopicWorkflows}, "workflow-processors"))
	defer func() { _ = c.Close() }()

	for seq := 0; seq < perKey; seq++ {
		for _, key := range keys {
			env, err := api.NewEnvelope("test", api.EventWorkflowCreated, map[string]any{"key": key, "seq": seq})
			s.Require().NoError(err)
			s.Require().NoError(p.Publish(s.ctx, api.TopicWorkflows, key, env))
		}
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.FailNowf("timeout", "only %d messages delivered", total)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, key := range keys {
		seqs := got[key]
		s.Require().Len(seqs, perKey, "key %s", key)
		for i, seq := range seqs {
			s.Require().Equal(i, seq, "key %s delivered out of order: %v", key, seqs)
		}
	}
}

func (s *RedisBusTestSuite) TestHandlerFailureAcksAndContinues() {
	p := NewRedisProducer(s.client, testPrefix, 1)
	s.Require().NoError(p.Connect(s.ctx))
	defer func() { _ = p.Disconnect() }()

	done := make(chan struct{})
	calls := 0

	c := NewRedisConsumer(s.client, testPrefix, 1, "consumer-1", ConsumerConfig{})
	c.Handle(api.TopicWorkflows, func(ctx context.Context, env api.Envelope) error {
		calls++
		if calls == 1 {
			panic("handler bug")
		}
		close(done)
		return nil
	})
	s.Require().NoError(c.Subscribe(s.ctx, []string{api.TopicWorkflows}, "g"))
	defer func() { _ = c.Close() }()

	for i := 0; i < 2; i++ {
		env, err := api.NewEnvelope("test", api.EventWorkflowCreated, map[string]any{"i": i})
		s.Require().NoError(err)
		s.Require().NoError(p.Publish(s.ctx, api.TopicWorkflows, "k", env))
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.FailNow("consume loop died after handler panic")
	}
}
