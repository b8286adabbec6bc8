package zk

import "testing"

func TestValidatePath(t *testing.T) {
	cases := map[string]bool{
		"/":          true,
		"/a":         true,
		"/a/b":       true,
		"":           false,
		"a/b":        false,
		"/a/":        false,
		"/a//b":      false,
		"/./a":       false,
		"/../a":      false,
		"/a/../b":    false,
	}
	for path, want := range cases {
		err := validatePath(path)
		if (err == nil) != want {
			t.Errorf("validatePath(%q) = %v, want valid=%v", path, err, want)
		}
	}
}

func TestChrootRoundTrip(t *testing.T) {
	chroot := "/app/prod"
	cases := []string{"/", "/a", "/a/b/c"}
	for _, client := range cases {
		server := prependChroot(chroot, client)
		got := stripChroot(chroot, server)
		if got != client {
			t.Errorf("round trip for %q: server=%q got=%q", client, server, got)
		}
	}
}

func TestChrootNoop(t *testing.T) {
	if prependChroot("", "/a/b") != "/a/b" {
		t.Fatal("empty chroot must not rewrite the path")
	}
	if stripChroot("", "/a/b") != "/a/b" {
		t.Fatal("empty chroot must not rewrite the path")
	}
}
