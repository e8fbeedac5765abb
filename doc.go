// Package rvmhost embeds sandboxed WebAssembly guests behind a typed
// capability boundary.
//
// # Overview
//
// Guests start with zero authority. Every host resource sits behind a
// capability broker: the host decides which categories a guest may hold,
// the broker issues a handle scoped to exactly those categories, and every
// invocation re-checks the grant. Revoking the handle cuts the guest off
// immediately, even mid-run.
//
// # Basic Usage
//
//	broker := hostcap.NewBroker(hostcap.CategoryCompute | hostcap.CategorySecretRead)
//	broker.Mount(hostcap.NewCompute(hostcap.DefaultComputeConfig()))
//	broker.Mount(hostcap.NewSecrets(hostcap.SecretsConfig{Source: hostcap.EnvSecret("CLIENT_SECRET")}))
//	defer broker.Close()
//
//	h, _ := broker.Issue(hostcap.CategoryCompute)
//	v, _ := broker.Invoke(ctx, h, "compute.multiply", map[string]any{"a": 2.0, "b": 3.0})
//	broker.Revoke(h)
//
// # Running Guests
//
//	runner, _ := guest.New(broker, guest.WithDiskCache())
//	defer runner.Close()
//
//	result := runner.Run(ctx, wasmBytes,
//	    guest.WithGrants(hostcap.CategoryCompute),
//	    guest.WithTimeout(10*time.Second))
//	fmt.Println(result.Output)
//
// See the [hostcap], [guest], and [result] packages for detailed API
// documentation.
package rvmhost
