package log

// Config is the confuration struct for the log package.
//
// Can be deserialized from YAML.
type Config struct {
	// Level is the log level you want to set the client to.
	Level Level `yaml:"level"`

	// JSON switches the output to full json format.
	JSON bool `yaml:"json"`
}

// InitFromConfig initializes the log package using the given Config.
//
// An empty Level defaults to InfoLevel.
func InitFromConfig(cfg Config) {
	if cfg.Level == "" {
		cfg.Level = InfoLevel
	}
	if cfg.JSON {
		InitLoggerJSON(cfg.Level)
		return
	}
	InitLogger(cfg.Level)
}
