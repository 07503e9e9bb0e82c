package daptools

import "testing"

func TestBuildSetBreakpointsConvertsLinesToBreakpoints(t *testing.T) {
	args := map[string]any{
		"source": "/tmp/main.go",
		"lines":  []any{float64(10), float64(20)},
	}
	got, err := buildSetBreakpoints(args)
	if err != nil {
		t.Fatalf("buildSetBreakpoints: %v", err)
	}
	m := got.(map[string]any)
	source := m["source"].(map[string]any)
	if source["path"] != "/tmp/main.go" {
		t.Fatalf("unexpected source: %v", source)
	}
	breakpoints := m["breakpoints"].([]map[string]any)
	if len(breakpoints) != 2 || breakpoints[0]["line"] != float64(10) || breakpoints[1]["line"] != float64(20) {
		t.Fatalf("unexpected breakpoints: %v", breakpoints)
	}
}

func TestBuildSetBreakpointsRequiresSource(t *testing.T) {
	if _, err := buildSetBreakpoints(map[string]any{"lines": []any{}}); err == nil {
		t.Fatalf("expected error for missing source")
	}
}

func TestBuildThreadArgumentsRequiresThreadID(t *testing.T) {
	if _, err := buildThreadArguments(map[string]any{}); err == nil {
		t.Fatalf("expected error for missing threadId")
	}
	got, err := buildThreadArguments(map[string]any{"threadId": float64(3)})
	if err != nil {
		t.Fatalf("buildThreadArguments: %v", err)
	}
	if got.(map[string]any)["threadId"] != float64(3) {
		t.Fatalf("unexpected arguments: %v", got)
	}
}

func TestFilterByCapabilitiesHidesConfigurationDoneWhenUnsupported(t *testing.T) {
	caps := []byte(`{"supportsConfigurationDoneRequest": false}`)
	filtered := FilterByCapabilities(caps)
	for _, tool := range filtered {
		if tool.Name == "dap_configuration_done" {
			t.Fatalf("dap_configuration_done should have been hidden")
		}
	}
}

func TestFilterByCapabilitiesShowsConfigurationDoneWhenSupported(t *testing.T) {
	caps := []byte(`{"supportsConfigurationDoneRequest": true}`)
	filtered := FilterByCapabilities(caps)
	found := false
	for _, tool := range filtered {
		if tool.Name == "dap_configuration_done" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dap_configuration_done to be advertised")
	}
}

func TestFilterByCapabilitiesNilAdvertisesEverything(t *testing.T) {
	if len(FilterByCapabilities(nil)) != len(Catalog) {
		t.Fatalf("expected nil capabilities to advertise the full catalog")
	}
}
