package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jack-barr3tt/tcs-engine/src/common/utils"
	"github.com/jack-barr3tt/tcs-engine/src/http-api/api"
)

func main() {
	utils.InitLogger()
	defer utils.SyncLogger()
	log := utils.GetLogger()

	app := fiber.New()

	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Path() != "/health" {
			log.Infow("request", "method", c.Method(), "path", c.Path(), "status", c.Response().StatusCode())
		}

		return err
	})

	app.Use(cors.New())

	server, err := api.NewServer()
	if err != nil {
		log.Fatalw("failed to start http api server", "error", err)
		return
	}
	defer server.Close()

	api.RegisterHandlers(app, server)

	if err := app.Listen(utils.GetEnv("HTTP_ADDR", ":3000")); err != nil {
		log.Fatalw("fiber listen failed", "error", err)
	}
}
