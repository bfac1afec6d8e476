package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpCommands struct {
	ch    *amqp.Channel
	queue string
}

func (p *amqpCommands) PublishCommand(ctx context.Context, cmd types.Command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   cmd.ID,
			Body:        body,
		},
	)
}

func (s *APIServer) publish(c *fiber.Ctx, cmd types.Command) error {
	cmd.ID = uuid.NewString()
	if err := s.Commands.PublishCommand(c.UserContext(), cmd); err != nil {
		s.Logger.Errorw("failed to publish command", "type", cmd.Type, "error", err)
		return c.Status(http.StatusBadGateway).JSON(ErrorResponse{
			Error:   "Queue error",
			Message: "Failed to queue command for the simulator",
		})
	}
	s.Logger.Infow("queued dispatcher command", "id", cmd.ID, "type", cmd.Type, "section", cmd.Section, "train", cmd.Train)
	return c.Status(http.StatusAccepted).JSON(AcceptedResponse{CommandID: cmd.ID})
}

// ForceSection sets or clears the dispatcher hold on a section.
func (s *APIServer) ForceSection(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil || index < 0 {
		return badRequest(c, "section index must be a non-negative integer")
	}
	req := ForceRequest{Forced: true}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "body must be {\"forced\": bool}")
		}
	}
	return s.publish(c, types.Command{Type: types.CmdForce, Section: index, Forced: req.Forced})
}

// CancelTrain removes a train and everything it holds.
func (s *APIServer) CancelTrain(c *fiber.Ctx) error {
	number, err := c.ParamsInt("number")
	if err != nil {
		return badRequest(c, "train number must be an integer")
	}
	return s.publish(c, types.Command{Type: types.CmdCancel, Train: number})
}
