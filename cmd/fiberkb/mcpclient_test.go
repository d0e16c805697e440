package main

import "testing"

func TestParseToolArgs(t *testing.T) {
	args, err := parseToolArgs(`{"query":"cotton","limit":3}`)
	if err != nil {
		t.Fatalf("parseToolArgs: %v", err)
	}
	if args["query"] != "cotton" || args["limit"] != float64(3) {
		t.Fatalf("unexpected args: %v", args)
	}

	empty, err := parseToolArgs("  ")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("blank args = %v, %v", empty, err)
	}

	for _, bad := range []string{`[1,2]`, `{"query":`, `"cotton"`} {
		if _, err := parseToolArgs(bad); err == nil {
			t.Errorf("parseToolArgs(%q) succeeded", bad)
		}
	}
}
