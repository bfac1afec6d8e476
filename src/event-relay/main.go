package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jack-barr3tt/tcs-engine/src/common/events"
	"github.com/jack-barr3tt/tcs-engine/src/common/utils"
	"github.com/jack-barr3tt/tcs-engine/src/event-relay/listener"

	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	utils.InitLogger()
	defer utils.SyncLogger()
	logger := utils.GetLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mqConn, err := utils.NewRabbitConnectionOnly()
	if err != nil {
		logger.Fatalw("failed to connect to RabbitMQ", "error", err)
	}
	defer mqConn.Close()

	closeChan := make(chan *amqp.Error)
	mqConn.NotifyClose(closeChan)

	go func() {
		select {
		case err := <-closeChan:
			if err != nil {
				logger.Warnw("RabbitMQ connection closed", "error", err)
				stop()
			}
		case <-ctx.Done():
			return
		}
	}()

	// Separate channels for consuming and publishing
	eventChannel, err := mqConn.Channel()
	if err != nil {
		logger.Fatalw("failed to create event channel", "error", err)
	}
	defer eventChannel.Close()

	commandChannel, err := mqConn.Channel()
	if err != nil {
		logger.Fatalw("failed to create command channel", "error", err)
	}
	defer commandChannel.Close()

	for _, q := range []string{utils.EventQueue, utils.CommandQueue} {
		if _, err := utils.DeclareQueue(eventChannel, q); err != nil {
			logger.Fatalw("failed to declare queue", "queue", q, "error", err)
		}
	}

	deliveries, err := eventChannel.ConsumeWithContext(ctx, utils.EventQueue, "event-relay", false, false, false, false, nil)
	if err != nil {
		logger.Fatalw("failed to consume events", "queue", utils.EventQueue, "error", err)
	}

	stompConn, err := utils.NewStompConnection()
	if err != nil {
		logger.Fatalw("failed to connect to stomp", "error", err)
	}

	topic := utils.GetEnv("STOMP_EVENT_TOPIC", utils.EventTopic)
	sink := events.NewStompSink(stompConn, topic, logger)

	var wg sync.WaitGroup

	commandListener := listener.NewListener(ctx, &wg, stompConn, utils.GetEnv("STOMP_COMMAND_QUEUE", "/queue/train-commands"),
		listener.ForwardCommands(commandChannel, utils.CommandQueue, logger), logger)

	wg.Add(1)
	go commandListener.Start()

	wg.Add(1)
	go func() {
		defer wg.Done()
		listener.RelayEvents(ctx, deliveries, sink, logger)
	}()

	logger.Infow("relaying track events", "queue", utils.EventQueue, "topic", topic)

	<-ctx.Done()
	stop()

	wg.Wait()

	stompConn.Disconnect()
}
