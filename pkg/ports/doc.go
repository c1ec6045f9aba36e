// Package ports defines the boundaries between the engine core and its
// external collaborators: the agent capability contract, the agent
// resolver, and the optional trace store. Adapters under pkg/adapters
// implement these interfaces.
package ports
