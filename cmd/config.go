package main

import "time"

type Config struct {
	DatabaseFilepath string        `env:"DATABASE_FILEPATH,required=true"`
	LogLevel         string        `env:"LOG_LEVEL,required=true"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL,default=30s"`
	SignalingIssuer  string        `env:"SIGNALING_ISSUER,default=talk-lab"`
}
