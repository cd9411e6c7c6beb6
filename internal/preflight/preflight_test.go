package preflight

import "testing"

func TestValidateAgentConfigMissingBinary(t *testing.T) {
	err := ValidateAgentConfig(AgentConfig{}, Policy{})
	if err == nil {
		t.Fatalf("expected error")
	}
	f, ok := err.(*Failure)
	if !ok || f.Subtype != SubtypeInvalidAgentConfig {
		t.Fatalf("expected invalid_agent_config, got %v", err)
	}
}

func TestValidateAgentConfigBinaryMissing(t *testing.T) {
	err := ValidateAgentConfig(AgentConfig{Binary: "definitely-not-a-real-binary-xyz"}, Policy{})
	if err == nil {
		t.Fatalf("expected error")
	}
	f, ok := err.(*Failure)
	if !ok || f.Subtype != SubtypeBinaryMissing {
		t.Fatalf("expected binary_missing, got %v", err)
	}
}

func TestValidateAgentConfigPolicyBlocksShell(t *testing.T) {
	err := ValidateAgentConfig(AgentConfig{Binary: "sh", RequiresShell: true}, Policy{AllowShell: false})
	if err == nil {
		t.Fatalf("expected error")
	}
	f, ok := err.(*Failure)
	if !ok || f.Subtype != SubtypePolicyBlock {
		t.Fatalf("expected policy_block, got %v", err)
	}
}

func TestProbeFailureReasonClassification(t *testing.T) {
	cases := []struct {
		stderr, stdout, want string
	}{
		{"ModuleNotFoundError: No module named 'encodings'", "", "missing_stdlib"},
		{"Access is denied.", "", "access_denied"},
		{"The system cannot find the file specified", "", "not_found"},
		{"some other failure", "", "runtime_probe_failed"},
	}
	for _, c := range cases {
		got, _ := probeFailureReason(c.stderr, c.stdout)
		if got != c.want {
			t.Errorf("probeFailureReason(%q) = %q, want %q", c.stderr, got, c.want)
		}
	}
}

func TestIsWindowsAppsAliasNonWindowsAlwaysFalse(t *testing.T) {
	if isWindowsAppsAlias(`C:\Users\x\AppData\Local\Microsoft\WindowsApps\python.exe`) && !isWindowsPlatform() {
		t.Fatalf("non-Windows platform should never classify as WindowsApps alias")
	}
}
