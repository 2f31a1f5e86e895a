// Package extension loads third-party extensions into the host.
//
// An extension is a folder holding manifest.json and an entry point written
// in JavaScript or Lua. The Registry discovers extension folders, parses
// their manifests, and for every enabled extension validates the source,
// evaluates it in a sandbox runtime and calls its optional initialize
// export with a capability API bound to the extension id.
//
// # Lifecycle
//
//	registered ──load──► loading ──► loaded ──unload──► registered
//	                        │           │
//	                        ▼           ▼
//	     error / policy-blocked      disabled ──enable──► loaded
//
// Disabling a loaded extension hides its registrations and style without
// releasing its runtime, so enabling it again is immediate. Loading an id
// that is already registered from the same folder reloads it. Removing an
// extension deletes its registrations, style, settings entry, folder and
// record.
//
// # Failure isolation
//
// Manifest errors are logged under the system id and no record is made.
// Validation, evaluation and initialize failures put the extension in the
// error state with the cause kept on Extension.Err. None of them stop a
// folder scan. initialize is bounded by security.Limits.InitializeTimeout.
//
// # Usage
//
//	reg := extension.NewRegistry(hostfs.NewOS(), vault)
//	if err := reg.LoadExtensionsFromFolder(ctx, root); err != nil {
//		log.Printf("some manifests were rejected: %v", err)
//	}
//	result, err := reg.Registries().ExecuteCommand(ctx, "hello.greet")
package extension
