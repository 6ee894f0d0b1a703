package main

import (
	"github.com/tebeka/atexit"

	"pwmfan/log"
)

func main() {
	code := 0
	if err := Execute(); err != nil {
		code = 1
	}
	log.Flush()
	atexit.Exit(code)
}
