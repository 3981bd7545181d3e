package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	LogLevel   string
	JSON       bool
}

type ServicesFlags struct {
	Status string
}

type LogsFlags struct {
	Limit int
}

type MonitorFlags struct {
	Cycles    int
	Interval  time.Duration
	AutoRetry bool
}

type ServeFlags struct {
	Listen   string
	BasePath string
	// Monitor runs the periodic reload/detect loop inside the daemon.
	Monitor bool
}
