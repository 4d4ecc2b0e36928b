package main

import (
	"github.com/dwarvesf/secret-bridge/internal/server"
)

// @title Secret Bridge API
// @version 1.0
// @description Drives ETH and Secret Network bridge transfers from intent to confirmation.
// @BasePath /api/v1
func main() {
	server.Init()
}
