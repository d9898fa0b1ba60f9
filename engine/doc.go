// Package engine wraps wazero for compilation, instantiation, and linear
// memory access.
//
//	eng, err := engine.New(ctx)
//	mod, err := eng.LoadModule(ctx, wasmBytes)
//	inst, err := mod.Instantiate(ctx, &engine.InstantiateConfig{Name: "env"})
//	v, ok := inst.IntegerGlobal("g")
//
// Naming an instance (InstantiateConfig.Name) registers its exports in the
// engine's runtime so later-instantiated modules can import from it by
// name — the mechanism the loader uses to share the primary instance's
// "memory" export with a dynamically loaded child (§4.2 step 6).
package engine
