package main

import "github.com/ghostkasd/ghostkasd/internal/logger"

var log, _ = logger.Get(logger.SubsystemTags.NODE)
