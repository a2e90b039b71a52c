// Package cli implements the axle command-line host.
//
// # Overview
//
// The CLI wraps the plugin manager in four commands:
//
//	axle inspect [-output text|json|yaml] <package>...
//	axle run [-hook name] [-payload data] <package>...
//	axle watch -dir /etc/axle/plugins [-listen 127.0.0.1:9090]
//	axle journal [-dsn DSN] [-limit N] [-plugin name] [-failures]
//
// inspect reads descriptors straight from the archives and never loads native
// code. run loads each package, calls the hook if one is given and unloads
// everything before exiting. watch keeps a directory loaded and serves
// /plugins, /plugins/{name}, /failures, /journal, /healthz, /readyz and
// /metrics until interrupted. journal prints lifecycle events recorded by
// earlier runs.
//
// Manager settings, logging, metrics, tracing and the journal database are
// read from AXLE_* environment variables; see pkg/config.
//
// # Usage Example
//
//	root := cli.NewRootCommand()
//	if err := root.Execute(); err != nil {
//		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
//		os.Exit(1)
//	}
//
// # Related Packages
//
//   - pkg/plugins: Plugin manager driven by run and watch
//   - pkg/watch: Directory watcher behind the watch command
//   - pkg/config: Environment configuration
//   - pkg/journal: Lifecycle event storage
package cli
