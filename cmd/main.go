package main

import (
	"github.com/metric-relay/cmd/agent"
)

func main() {
	agent.Execute()
}
