// Package guest runs sandboxed wasm modules and bridges their host calls
// through a capability broker.
//
// Guest modules are ordinary WASI binaries. They reach the host by writing
// call frames to stderr between NUL markers:
//
//	\x00RVM:{"op":"compute.multiply","args":{"a":2,"b":3}}\x00
//
// and read one JSON reply per line from stdin, shaped as {"ok":...} or
// {"err":{"kind":"...","message":"..."}}. Plain stderr output outside the
// markers passes through untouched.
//
// Each run is issued its own broker handle, restricted to the categories
// granted for the run and revoked when the run ends:
//
//	broker := hostcap.NewBroker(hostcap.AllCategories)
//	broker.Mount(hostcap.NewCompute(hostcap.DefaultComputeConfig()))
//
//	runner, _ := guest.New(broker)
//	defer runner.Close()
//
//	result := runner.Run(ctx, wasmBytes,
//	    guest.WithGrants(hostcap.CategoryCompute),
//	    guest.WithTimeout(10*time.Second))
package guest
