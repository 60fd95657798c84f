package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// pahoLogger adapts a Logger to paho's Println/Printf logger interface.
type pahoLogger struct {
	log func(msg string, args ...any)
}

func (l pahoLogger) Println(v ...any) {
	l.log(strings.TrimSpace(fmt.Sprintln(v...)), "source", "paho")
}

func (l pahoLogger) Printf(format string, v ...any) {
	l.log(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "paho")
}

// BridgeLibraryLogs routes paho's internal WARN, ERROR and CRITICAL output
// to logger. paho keeps these loggers in package globals, so call this once
// at startup before any client is created.
func BridgeLibraryLogs(logger Logger) {
	pahomqtt.WARN = pahoLogger{log: logger.Warn}
	pahomqtt.ERROR = pahoLogger{log: logger.Error}
	pahomqtt.CRITICAL = pahoLogger{log: logger.Error}
}
