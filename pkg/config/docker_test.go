package config

import (
	"testing"
)

func TestResolveHostForDocker(t *testing.T) {
	// Non-loopback hosts are never rewritten, in or out of a container.
	for _, host := range []string{"ollama.internal", "192.168.1.100", "host.docker.internal"} {
		if got := ResolveHostForDocker(host); got != host {
			t.Errorf("ResolveHostForDocker(%q) = %q, want unchanged", host, got)
		}
	}

	// Loopback rewriting depends on whether the test itself runs in a
	// container, so assert both sides of the branch.
	for _, host := range []string{"localhost", "127.0.0.1"} {
		got := ResolveHostForDocker(host)
		if IsRunningInDocker() {
			if got != "host.docker.internal" {
				t.Errorf("ResolveHostForDocker(%q) in container = %q", host, got)
			}
		} else if got != host {
			t.Errorf("ResolveHostForDocker(%q) outside container = %q", host, got)
		}
	}
}

func TestResolveURLForDocker(t *testing.T) {
	url := "http://ollama.internal:11434"
	if got := ResolveURLForDocker(url); got != url {
		t.Errorf("ResolveURLForDocker(%q) = %q, want unchanged", url, got)
	}

	got := ResolveURLForDocker("http://localhost:11434")
	if IsRunningInDocker() {
		if got != "http://host.docker.internal:11434" {
			t.Errorf("loopback base url in container = %q", got)
		}
	} else if got != "http://localhost:11434" {
		t.Errorf("loopback base url outside container = %q", got)
	}
}
