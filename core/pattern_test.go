package core

import "testing"

func TestCompile_MatchAndFilter(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		topic   string
		want    bool
		params  map[string]string
	}{
		{"exact", "devices/status", "devices/status", true, map[string]string{}},
		{"single placeholder", "devices/{device_id}/status", "devices/abc-42/status", true, map[string]string{"device_id": "abc-42"}},
		{"placeholder does not cross segments", "devices/{device_id}/status", "devices/abc/42/status", false, nil},
		{"trailing slash not normalized", "devices/status", "devices/status/", false, nil},
		{"two placeholders", "a/{x}/{y}", "a/1/2", true, map[string]string{"x": "1", "y": "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.pattern)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.pattern, err)
			}
			params, ok := p.Match(tt.topic)
			if ok != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.topic, ok, tt.want)
			}
			if !ok {
				return
			}
			if len(params) != len(tt.params) {
				t.Fatalf("params = %v, want %v", params, tt.params)
			}
			for k, v := range tt.params {
				if params[k] != v {
					t.Errorf("params[%q] = %q, want %q", k, params[k], v)
				}
			}
		})
	}
}

func TestCompile_FilterSegmentCount(t *testing.T) {
	p, err := Compile("devices/{device_id}/status")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.Filter(), "devices/+/status"; got != want {
		t.Errorf("Filter() = %q, want %q", got, want)
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []string{
		"",
		"devices/{id",
		"devices/id}",
		"devices/{}/status",
		"devices/{id}/{id}",
	}
	for _, pattern := range tests {
		if _, err := Compile(pattern); err == nil {
			t.Errorf("Compile(%q): expected error, got nil", pattern)
		}
	}
}

func TestCompile_CaseSensitive(t *testing.T) {
	p, err := Compile("Devices/{id}")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Match("devices/1"); ok {
		t.Error("pattern matching should be case-sensitive")
	}
}
