package main

import (
	"github.com/corray333/backend-labs/fulfillment/internal/app"
	"github.com/corray333/backend-labs/fulfillment/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
