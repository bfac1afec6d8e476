package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jack-barr3tt/tcs-engine/src/common/data"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
)

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
		Error:   "Bad Request",
		Message: message,
	})
}

func notFound(c *fiber.Ctx, what string) error {
	return c.Status(http.StatusNotFound).JSON(NotFoundResponse{Error: what})
}

// snapshot loads the latest engine state. It writes the error response itself
// and returns nil state when there is nothing to serve.
func (s *APIServer) snapshot(c *fiber.Ctx) (*types.EngineSaveState, error) {
	st, err := s.Snapshots.LoadSnapshot(c.UserContext(), s.Route)
	if errors.Is(err, data.ErrNoSnapshot) {
		return nil, notFound(c, "No snapshot for route "+s.Route)
	}
	if err != nil {
		s.Logger.Errorw("failed to load snapshot", "route", s.Route, "error", err)
		errStr := err.Error()
		return nil, c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "Snapshot error",
			Message: "Failed to load the latest engine state",
			Stack:   &errStr,
		})
	}
	return st, nil
}

func (s *APIServer) GetSections(c *fiber.Ctx) error {
	st, err := s.snapshot(c)
	if st == nil {
		return err
	}
	return c.JSON(SectionsResponse{Tick: st.Tick, Clock: st.ClockTime, Sections: st.Sections})
}

func (s *APIServer) GetSection(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return badRequest(c, "section index must be an integer")
	}
	st, err := s.snapshot(c)
	if st == nil {
		return err
	}
	for _, sec := range st.Sections {
		if sec.Index == index {
			return c.JSON(sec)
		}
	}
	return notFound(c, "Section not found")
}

func trainResponse(t types.TrainSaveState) TrainResponse {
	route := make([]int, len(t.Route.Elements))
	for i, el := range t.Route.Elements {
		route[i] = el.Section
	}
	return TrainResponse{Number: t.Number, Length: t.Length, Route: route, Front: t.Front, Rear: t.Rear}
}

func (s *APIServer) GetTrains(c *fiber.Ctx) error {
	st, err := s.snapshot(c)
	if st == nil {
		return err
	}
	trains := make([]TrainResponse, 0, len(st.Trains))
	for _, t := range st.Trains {
		trains = append(trains, trainResponse(t))
	}
	return c.JSON(TrainsResponse{Tick: st.Tick, Clock: st.ClockTime, Trains: trains})
}

func (s *APIServer) GetTrain(c *fiber.Ctx) error {
	number, err := c.ParamsInt("number")
	if err != nil {
		return badRequest(c, "train number must be an integer")
	}
	st, err := s.snapshot(c)
	if st == nil {
		return err
	}
	for _, t := range st.Trains {
		if t.Number == number {
			return c.JSON(trainResponse(t))
		}
	}
	return notFound(c, "Train not found")
}

func (s *APIServer) GetDeadlocks(c *fiber.Ctx) error {
	st, err := s.snapshot(c)
	if st == nil {
		return err
	}
	deadlocks := st.Deadlocks
	if deadlocks == nil {
		deadlocks = []types.DeadlockInfoSaveState{}
	}
	return c.JSON(DeadlocksResponse{Tick: st.Tick, Deadlocks: deadlocks})
}
