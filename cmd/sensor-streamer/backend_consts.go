package main

import "time"

const (
	tcpReadTimeout  = 10 * time.Millisecond // per poll cycle wait while attached
	tcpWriteTimeout = 2 * time.Second
	mdnsStopGrace   = 50 * time.Millisecond
)
