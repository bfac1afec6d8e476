package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jack-barr3tt/tcs-engine/src/common/data"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"github.com/jack-barr3tt/tcs-engine/src/common/utils"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, route string) (*types.EngineSaveState, error)
}

type CommandPublisher interface {
	PublishCommand(ctx context.Context, cmd types.Command) error
}

type APIServer struct {
	Route     string
	Snapshots SnapshotStore
	Commands  CommandPublisher
	Logger    *zap.SugaredLogger

	conn *amqp.Connection
}

// NewServer connects to Redis for snapshots and RabbitMQ for dispatcher commands.
func NewServer() (*APIServer, error) {
	logger := utils.GetLogger()

	conn, channel, err := utils.NewRabbitConnection()
	if err != nil {
		logger.Errorw("failed to connect to RabbitMQ", "error", err)
		return nil, err
	}
	if _, err := utils.DeclareQueue(channel, utils.CommandQueue); err != nil {
		conn.Close()
		return nil, err
	}

	redis := utils.NewRedisClient()

	return &APIServer{
		Route:     utils.GetEnv("SIM_ROUTE", "default"),
		Snapshots: data.NewDataClient(nil, redis, logger),
		Commands:  &amqpCommands{ch: channel, queue: utils.CommandQueue},
		Logger:    logger,
		conn:      conn,
	}, nil
}

func (s *APIServer) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func RegisterHandlers(app *fiber.App, s *APIServer) {
	app.Get("/health", s.GetHealth)
	app.Get("/sections", s.GetSections)
	app.Get("/sections/:index", s.GetSection)
	app.Post("/sections/:index/force", s.ForceSection)
	app.Get("/trains", s.GetTrains)
	app.Get("/trains/:number", s.GetTrain)
	app.Delete("/trains/:number", s.CancelTrain)
	app.Get("/deadlocks", s.GetDeadlocks)
}
