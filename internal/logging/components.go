package logging

// Component constants for structured logging
const (
	ComponentStartup  = "startup"
	ComponentConfig   = "config"
	ComponentDocument = "document"
	ComponentRender   = "render"
	ComponentExport   = "export"
	ComponentWatcher  = "watcher"
	ComponentServer   = "server"
)
