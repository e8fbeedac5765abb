// Package hostcap is the host capability boundary for sandboxed guest code.
//
// Guests hold no implicit power over host resources. Every host-mediated
// operation goes through a [Broker]: the host issues a [Handle] restricted to
// a set of [Category] bits, and the broker re-checks the category on every
// invocation, not just at issuance.
//
// # Broker and Handles
//
// A handle is a weak, generation-checked token into the broker's grant table.
// The host owns the underlying grant and may revoke it at any time; a revoked
// or stale handle fails with HandleExpired instead of dangling:
//
//	broker := hostcap.NewBroker(hostcap.CategoryCompute | hostcap.CategorySecretRead)
//	broker.Mount(hostcap.NewCompute(hostcap.DefaultComputeConfig()))
//
//	h, _ := broker.Issue(hostcap.CategoryCompute)
//	v, err := broker.Invoke(ctx, h, "compute.multiply", map[string]any{"a": 2.0, "b": 3.0})
//	broker.Revoke(h) // later invokes fail with HandleExpired
//
// # Capabilities
//
// A capability is satisfied by shape, not ancestry: any type with Name and
// Ops methods mounts into a broker. The built-in reference capabilities are
// [Compute], [Secrets], [KV], and [Fetch]; real embedders replace them.
//
// # Errors
//
// Failures cross the boundary as typed [*Error] values drawn from a closed
// [Kind] taxonomy. Nothing panics across the boundary and no error is
// swallowed; the guest runtime decides what to do with each failure.
//
// # Scoped Sessions
//
// [Session] scopes resource use to a block with release guaranteed on every
// exit path, and hands the body's failure to the release hook:
//
//	err := broker.WithSession(h, func(s *hostcap.Session) *hostcap.Error {
//	    _, err := s.Invoke(ctx, "kv.set", args)
//	    return err
//	}, hostcap.WithRelease(func(failure *hostcap.Error) {
//	    // failure is nil on clean exit
//	}))
package hostcap
