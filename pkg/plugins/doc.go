// Package plugins loads native plugin packages and manages their lifecycle.
//
// # Overview
//
// A plugin package is a zip archive holding a metadata.toml descriptor and a
// native shared object. The Manager unpacks a package into a private work
// directory, validates the descriptor, opens the object file, calls its entry
// point and registers the plugin under its declared name. Callers receive a
// Ref, a non-owning handle the Manager validates on every use.
//
// # Lifecycle
//
//	Loaded -> Initialized -> (Running) -> Unloaded
//	   \           \
//	    `-> Failed  `-> Failed
//
// Running is reported while at least one hook call is in flight. A plugin
// whose load fails never enters the registry; the attempt is kept as a
// Failure record instead.
//
// Manager.Close unloads every plugin, most recently loaded first. Each plugin
// gets exactly one unload attempt and errors are joined, never retried. A
// Manager that becomes unreachable without Close is torn down by a runtime
// cleanup and a warning is logged.
//
// # Native Contract
//
//	int32_t axle_init(void);            // entry point, 0 = success
//	void    axle_exit(void);            // destructor, optional
//	int32_t hook(axle_payload *p);      // see pkg/hookabi
//
// Descriptors may override the entry point and destructor names. Format 2
// descriptors may omit the entry point entirely. Plugins that declare
// threading = "single" have every native call made from one dedicated OS
// thread.
//
// # Usage Example
//
//	mgr, err := plugins.NewManager(plugins.Options{Logger: logger})
//	if err != nil {
//		return err
//	}
//	defer mgr.Close()
//
//	ref, err := mgr.Load(ctx, "/opt/axle/hello.axp")
//	if err != nil {
//		return err
//	}
//
//	res, err := mgr.InvokeHook(ctx, ref, "hello_greet", []byte("world"))
//	if errors.Is(err, plugins.ErrSymbolNotFound) {
//		...
//	}
//	fmt.Println(string(res.Output))
//
// # Related Packages
//
//   - pkg/archive: package extraction
//   - pkg/descriptor: metadata.toml parsing
//   - pkg/dynlib: native library access
//   - pkg/hookabi: hook payload layout
//   - pkg/journal: lifecycle event persistence
package plugins
