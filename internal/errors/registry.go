package errors

// Template defines a registered error.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Config Errors (E100-E119)
	// ============================================

	"E100": {
		Category: CategoryConfig,
		Message:  "Config file could not be read",
		Detail:   "The configuration file exists but could not be opened.",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Config file is malformed",
		Detail:   "The configuration file could not be decoded.",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Unsupported config format",
		Detail:   "Configuration files must end in .json, .yaml or .yml.",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "A configuration value is out of range.",
	},

	// ============================================
	// Session Errors (E120-E139)
	// ============================================

	"E120": {
		Category: CategorySession,
		Message:  "Unknown session store",
		Detail:   "The session store must be one of memory, redis or bolt.",
	},
	"E121": {
		Category: CategorySession,
		Message:  "Session store unavailable",
		Detail:   "The session store could not be opened or reached.",
	},

	// ============================================
	// Server Errors (E140-E159)
	// ============================================

	"E140": {
		Category: CategoryServer,
		Message:  "Route tree could not be built",
		Detail:   "The application graph does not match the registered handlers.",
	},
	"E141": {
		Category: CategoryServer,
		Message:  "Server failed",
		Detail:   "The HTTP server stopped with an error.",
	},
	"E142": {
		Category: CategoryServer,
		Message:  "Application startup failed",
		Detail:   "A startup callback reported a failure.",
	},
	"E143": {
		Category: CategoryServer,
		Message:  "Application shutdown failed",
		Detail:   "A shutdown callback reported a failure or shutdown timed out.",
	},

	// ============================================
	// CLI Errors (E160-E179)
	// ============================================

	"E160": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
