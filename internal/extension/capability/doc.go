// Package capability implements the registries extensions write into and
// the per-extension API object through which they do so.
//
// Registries holds one keyed collection per capability kind (commands,
// hooks, filters, UI slots, context-menu items, menu-bar items and menu
// categories). Entries are keyed by qualified id, "<extension>.<local>", so
// two extensions registering the same local id never collide.
//
// An API is issued per extension by the orchestrator and closes over the
// extension id. Extension code only ever supplies local ids:
//
//	api := capability.NewAPI("word-count", host, nil)
//	qid, err := api.RegisterCommand(capability.Command{
//	    ID:      "count",
//	    Name:    "Count words",
//	    Execute: countWords,
//	})
//	// qid == "word-count.count"
//
// The host reads the registries through Registries.ExecuteCommand,
// RunHooks, ApplyFilters, Slots, ContextMenuItems and MenuBar. Callback
// failures and panics are returned as errors and never escape into the
// host.
package capability
