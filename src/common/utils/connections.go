package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

func rabbitURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		GetEnv("MQ_USER", "guest"),
		GetEnv("MQ_PASSWORD", "guest"),
		GetEnv("MQ_HOST", "rabbitmq"),
		GetEnv("MQ_PORT", "5672"),
	)
}

func NewRabbitConnection() (*amqp.Connection, *amqp.Channel, error) {
	connection, err := NewRabbitConnectionOnly()
	if err != nil {
		return nil, nil, err
	}
	channel, err := connection.Channel()
	if err != nil {
		connection.Close()
		return nil, nil, err
	}

	return connection, channel, nil
}

func NewRabbitConnectionOnly() (*amqp.Connection, error) {
	config := amqp.Config{
		Heartbeat: 60 * time.Second,
		Locale:    "en_US",
	}

	return amqp.DialConfig(rabbitURL(), config)
}

// DeclareQueue declares a durable queue the way every service expects it.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(name, true, false, false, false, nil)
}

func NewStompConnection() (*stomp.Conn, error) {
	url := GetEnv("STOMP_ENDPOINT", "activemq:61613")
	username := GetEnv("STOMP_USERNAME", "")
	password := GetEnv("STOMP_PASSWORD", "")

	conn, err := stomp.Dial("tcp", url,
		stomp.ConnOpt.Login(username, password),
		stomp.ConnOpt.HeartBeat(30*time.Second, 30*time.Second),
	)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

func NewRedisClient() *redis.Client {
	// default to the redis service in the cluster
	redisAddr := GetEnv("REDIS_ADDR", "redis:6379")

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   GetEnvInt("REDIS_DB", 0),
	})

	return rdb
}

func NewPostgresConnection() (*pgxpool.Pool, error) {
	dbConnectionString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		GetEnv("POSTGRES_HOST", "postgres"),
		GetEnv("POSTGRES_PORT", "5432"),
		GetEnv("POSTGRES_USER", "postgres"),
		GetEnv("POSTGRES_PASSWORD", ""),
		GetEnv("POSTGRES_DB", "tcs"),
	)

	connection, err := pgxpool.New(context.Background(), dbConnectionString)
	if err != nil {
		return nil, err
	}

	return connection, nil
}
