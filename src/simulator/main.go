package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jack-barr3tt/tcs-engine/src/common/circuit"
	"github.com/jack-barr3tt/tcs-engine/src/common/data"
	"github.com/jack-barr3tt/tcs-engine/src/common/events"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"github.com/jack-barr3tt/tcs-engine/src/common/utils"
	"github.com/jack-barr3tt/tcs-engine/src/simulator/runner"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func loadTopology(ctx context.Context, dc *data.DataClient, route string) (*types.Topology, error) {
	if path := os.Getenv("SIM_TOPOLOGY_FILE"); path != "" {
		return utils.ReadTopologyFile(path)
	}
	return dc.LoadTopology(ctx, route)
}

// newEngine resumes from the latest snapshot when there is one.
func newEngine(ctx context.Context, dc *data.DataClient, route string, topo *types.Topology, sink circuit.Sink, log *zap.SugaredLogger) (*circuit.Engine, error) {
	reg, err := circuit.NewRegistryFromTopology(*topo)
	if err != nil {
		return nil, err
	}

	st, err := dc.LoadSnapshot(ctx, route)
	if errors.Is(err, data.ErrNoSnapshot) {
		log.Infow("no snapshot, starting empty", "route", route)
		return circuit.NewEngine(reg, log, sink), nil
	}
	if err != nil {
		return nil, err
	}

	eng, err := circuit.RestoreEngine(reg, *st, log, sink)
	if err != nil {
		return nil, err
	}
	log.Infow("restored snapshot", "route", route, "tick", st.Tick, "trains", len(st.Trains), "deadlocks", len(st.Deadlocks))
	return eng, nil
}

func consumeCommands(ctx context.Context, ch *amqp.Channel, r *runner.Runner, log *zap.SugaredLogger) error {
	msgs, err := ch.ConsumeWithContext(ctx, utils.CommandQueue, "", true, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			cmds, err := utils.UnmarshalCommands(msg.Body)
			if err != nil {
				log.Warnw("error unmarshalling command", "error", err)
				continue
			}
			for i := range cmds {
				if cmds[i].ID == "" {
					cmds[i].ID = uuid.NewString()
				}
			}
			r.Enqueue(cmds...)
		}
	}()
	return nil
}

func main() {
	utils.InitLogger()
	defer utils.SyncLogger()
	log := utils.GetLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	route := utils.GetEnv("SIM_ROUTE", "default")

	rdb := utils.NewRedisClient()
	defer rdb.Close()

	dc := data.NewDataClient(nil, rdb, log)
	if os.Getenv("SIM_TOPOLOGY_FILE") == "" {
		pg, err := utils.NewPostgresConnection()
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pg.Close()
		dc = data.NewDataClient(pg, rdb, log)
	}

	topo, err := loadTopology(ctx, dc, route)
	if err != nil {
		log.Fatalw("failed to load topology", "route", route, "error", err)
	}

	conn, channel, err := utils.NewRabbitConnection()
	if err != nil {
		log.Fatalw("failed to connect to RabbitMQ", "error", err)
	}
	defer conn.Close()
	defer channel.Close()

	for _, q := range []string{utils.CommandQueue, utils.EventQueue} {
		if _, err := utils.DeclareQueue(channel, q); err != nil {
			log.Fatalw("failed to declare queue", "queue", q, "error", err)
		}
	}

	// Publishing gets its own channel so consuming never stalls the tick loop.
	pubChannel, err := conn.Channel()
	if err != nil {
		log.Fatalw("failed to create publish channel", "error", err)
	}
	defer pubChannel.Close()

	sink := events.NewAsync(events.NewAMQPSink(pubChannel, utils.EventQueue, log), 1024, log)
	defer sink.Close()

	eng, err := newEngine(ctx, dc, route, topo, sink, log)
	if err != nil {
		log.Fatalw("failed to start engine", "route", route, "error", err)
	}

	r := runner.New(eng, runner.Config{
		Route:         route,
		TickInterval:  utils.GetEnvDuration("SIM_TICK_MS", 500*time.Millisecond),
		SnapshotEvery: utils.GetEnvInt("SIM_SNAPSHOT_EVERY", 20),
		SnapshotTTL:   utils.GetEnvDuration("SIM_SNAPSHOT_TTL", 24*time.Hour),
	}, dc, log)

	if err := consumeCommands(ctx, channel, r, log); err != nil {
		log.Fatalw("failed to consume commands", "queue", utils.CommandQueue, "error", err)
	}

	if err := r.Run(ctx); err != nil {
		log.Errorw("final snapshot failed", "error", err)
	}
}
