package config

type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelFatal   LogLevel = "FATAL"

	LogFormatPlain = "plain"
	LogFormatJSON  = "json"
)

func (l LogLevel) String() string {
	return string(l)
}

type LogConfig struct {
	Level  LogLevel `mapstructure:"level" default:"INFO"`   // log level - DEBUG, INFO, WARN, ERROR, FATAL
	Format string   `mapstructure:"format" default:"plain"` // format strategy - plain, json
}
