/*
Package client is the controller side of the worker service.

A Handle is one gRPC connection to one worker. Dial only returns a handle
after the worker has answered a Generation probe within ProbeTimeout, so a
non-nil handle always refers to a live process. Every later call runs under
RequestTimeout unless the caller's context is shorter.

	h, err := client.Dial(ctx, node.Address(binding.Port), client.Options{})
	if err != nil {
		return err
	}
	defer h.Close()

	inside, err := h.Calculate(ctx, types.SizeBlock(100000))

Handles are not shared between dispatch clients. Each client dials its own,
and closing one never affects another.

# Capacity

DiscoverCapacity asks a worker for its CPU count. Any failure or a
non-positive answer reports the capacity as unknown, and the orchestrator
then runs exactly one client against that node.

# Errors

gRPC status errors are passed through unchanged; callers that care inspect
them with status.Code. Transport failures surface as Unavailable or
DeadlineExceeded.
*/
package client
