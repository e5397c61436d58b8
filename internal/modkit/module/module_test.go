package module

import (
	"net/http"
	"net/http/httptest"
	"testing"

	phttp "rplace/internal/platform/net/http"
	kit "rplace/internal/platform/testkit"
)

type statusPort interface{ Status() string }

type status string

func (s status) Status() string { return string(s) }

type bundle struct {
	Status statusPort
	hidden statusPort
}

type stubModule struct {
	name  string
	ports any
}

func (s stubModule) Name() string { return s.name }
func (s stubModule) Ports() any   { return s.ports }
func (s stubModule) MountRoutes(r phttp.Router) {
	phttp.GetJSON(r, "/"+s.name, func(*http.Request) (any, error) { return s.name, nil })
}

func TestPortsOf(t *testing.T) {
	t.Parallel()

	direct := stubModule{name: "direct", ports: status("ok")}
	if got, ok := PortsOf[statusPort](direct); !ok || got.Status() != "ok" {
		t.Fatalf("direct ports not found")
	}

	field := stubModule{name: "field", ports: bundle{Status: status("field")}}
	if got, ok := PortsOf[statusPort](field); !ok || got.Status() != "field" {
		t.Fatalf("field ports not found")
	}

	ptr := stubModule{name: "ptr", ports: &bundle{Status: status("ptr")}}
	if got := MustPortsOf[statusPort](ptr); got.Status() != "ptr" {
		t.Fatalf("pointer bundle ports not found")
	}

	unexported := stubModule{name: "hidden", ports: bundle{hidden: status("x")}}
	if _, ok := PortsOf[statusPort](unexported); ok {
		t.Fatalf("unexported fields must not be walked")
	}

	none := stubModule{name: "none"}
	if _, ok := PortsOf[statusPort](none); ok {
		t.Fatalf("nil ports should not match")
	}
	kit.MustPanic(t, func() { _ = MustPortsOf[statusPort](none) })
}

func TestMount(t *testing.T) {
	t.Parallel()

	r := phttp.NewServer(":0").Router()
	Mount(r, stubModule{name: "alpha"}, stubModule{name: "beta"})

	for _, p := range []string{"/alpha", "/beta"} {
		rec := httptest.NewRecorder()
		r.Mux().ServeHTTP(rec, httptest.NewRequest("GET", p, nil))
		if rec.Code != 200 {
			t.Fatalf("%s = %d", p, rec.Code)
		}
	}
}
