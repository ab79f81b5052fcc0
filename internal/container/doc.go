// Package container manages broker-adjacent Docker containers: schema
// registries, connect workers, and other sidecars that run next to the
// cluster rather than inside it.
//
// The runtime tracks every container it starts, so CleanupAll can tear
// down exactly what it created and nothing else. Images are pulled only
// when absent locally. Log output from the daemon arrives in Docker's
// multiplexed stream format and is demultiplexed before callers see it.
package container
