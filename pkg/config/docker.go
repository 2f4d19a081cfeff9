package config

import (
	"os"
	"sync"
)

var inDocker = sync.OnceValue(func() bool {
	// Docker creates /.dockerenv at the container filesystem root.
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// IsRunningInDocker reports whether this process runs inside a Docker
// container. The check happens once and is cached.
func IsRunningInDocker() bool {
	return inDocker()
}

// ResolveHostForDocker maps loopback hosts to host.docker.internal when the
// engine runs containerized, so a Postgres or Redis on the host machine stays
// reachable without config changes. Any other host passes through untouched.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}
