// Package config loads the cinder server configuration.
//
// The configuration is read from cinder.json, or from the file named by the
// --config flag or the CINDER_CONFIG environment variable. Files ending in
// .yaml or .yml are decoded as YAML. A missing file yields the defaults.
//
// # Configuration File Structure
//
//	{
//	  "host": "0.0.0.0",
//	  "port": 8000,
//	  "logLevel": "info",
//	  "logFormat": "json",
//	  "accessLogging": true,
//	  "responseTimeout": "60s",
//	  "session": {
//	    "store": "redis",
//	    "redisAddr": "127.0.0.1:6379"
//	  },
//	  "metrics": {"enabled": true, "path": "/metrics"},
//	  "tracing": {"enabled": true},
//	  "compression": {"enabled": true, "level": 5},
//	  "static": {"dir": "public", "prefix": "/static"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(config.Resolve(flagPath), logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
