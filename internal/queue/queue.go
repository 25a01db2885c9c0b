package queue

import (
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// Queue wraps the asynq client and handler mux used for background work:
// pending-transaction reconciliation and receipt email dispatch.
type Queue struct {
	Client *asynq.Client
	Mux    *asynq.ServeMux
}

// NewQueue creates the queue client and handler mux
func NewQueue(redisURL string) (*Queue, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}

	client := asynq.NewClient(redisOpt)
	mux := asynq.NewServeMux()

	log.Info().Msg("queue client initialized")

	return &Queue{
		Client: client,
		Mux:    mux,
	}, nil
}

// ServerConfig returns the asynq server configuration for the worker
func ServerConfig(redisURL string, concurrency int) (asynq.RedisConnOpt, asynq.Config, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, asynq.Config{}, err
	}

	return redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
	}, nil
}

// Close gracefully closes the queue client
func (q *Queue) Close() error {
	if q.Client != nil {
		log.Info().Msg("closing queue client")
		return q.Client.Close()
	}
	return nil
}
