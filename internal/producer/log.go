package producer

import "github.com/ghostkasd/ghostkasd/internal/logger"

// log writes nothing until the process calls logger.InitLogRotators; from
// then on it logs at info level unless a level is set.
var log, _ = logger.Get(logger.SubsystemTags.PROD)
