package sandbox

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// pythonVersionCandidates is the closed set of Python X.Y bases the
// auto-selector may choose from, lowest first, matching §4.D's auto
// candidate set.
var pythonVersionCandidates = []string{"3.8", "3.9", "3.10", "3.11", "3.12", "3.13"}

var dockerfileFromRE = regexp.MustCompile(`(?i)^(\s*FROM\s+)(\S+)(.*)$`)

// ReadDockerfileBaseImage returns the image reference on the first
// (non-comment) `FROM` line.
func ReadDockerfileBaseImage(dockerfilePath string) (string, error) {
	f, err := os.Open(dockerfilePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		if m := dockerfileFromRE.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[2]), nil
		}
	}
	return "", nil
}

// RewriteDockerfileBaseImage rewrites the first FROM line to newBaseImage,
// preserving everything after the image reference (e.g. `AS builder`).
func RewriteDockerfileBaseImage(dockerfilePath, newBaseImage string) error {
	raw, err := os.ReadFile(dockerfilePath)
	if err != nil {
		return err
	}
	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		m := dockerfileFromRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lines[i] = m[1] + newBaseImage + m[3]
		out := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
		return os.WriteFile(dockerfilePath, []byte(out), 0o644)
	}
	return fmt.Errorf("could not find a FROM line in Dockerfile: %s", dockerfilePath)
}

// ResolveSandboxCLIBaseImage decides which base image the sandbox_cli
// image context should use. dockerPython is "context" (no override),
// "auto" (select to satisfy requiresPython), or an explicit version/image
// reference. Returns the resolved image and a human-readable reason.
func ResolveSandboxCLIBaseImage(dockerPython, dockerfileBaseImage, requiresPython string) (string, string, error) {
	if dockerfileBaseImage == "" {
		return "", "could not read Dockerfile base image", nil
	}
	if dockerPython == "context" {
		return dockerfileBaseImage, "mode=context (no override)", nil
	}
	if dockerPython != "auto" {
		resolved, err := resolvePythonBaseImageOverride(dockerPython)
		if err != nil {
			return "", "", err
		}
		return resolved, "mode=explicit", nil
	}
	if requiresPython == "" {
		return dockerfileBaseImage, "mode=auto (target requires-python not found)", nil
	}

	dockerfilePythonVersion, err := pythonVersionFromImage(dockerfileBaseImage)
	if err != nil {
		return "", "", err
	}
	if ok, err := pythonVersionSatisfies(requiresPython, dockerfilePythonVersion); err == nil && ok {
		return dockerfileBaseImage, "mode=auto (Dockerfile base satisfies requires-python)", nil
	}

	selected := selectPythonVersionForRequires(requiresPython)
	if selected == "" {
		return "", "", fmt.Errorf(
			"docker sandbox python auto-selection failed.\nrequires_python=%q\nsupported_versions=[%s]\nTip: pass an explicit version (e.g., 3.12) or \"context\".",
			requiresPython, strings.Join(pythonVersionCandidates, ", "))
	}
	resolved, err := resolvePythonBaseImageOverride(selected)
	if err != nil {
		return "", "", err
	}
	return resolved, "mode=auto (override to satisfy target requires-python)", nil
}

func resolvePythonBaseImageOverride(value string) (string, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return "", fmt.Errorf("python base image selector must be non-empty")
	}
	if strings.Contains(raw, ":") || strings.Contains(raw, "/") {
		return raw, nil
	}
	if bareVersionRE.MatchString(raw) {
		return "python:" + raw + "-slim", nil
	}
	return "python:" + raw, nil
}

var bareVersionRE = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+){1,2}$`)

func pythonVersionFromImage(image string) (string, error) {
	tag := image
	if idx := strings.LastIndex(image, ":"); idx >= 0 {
		tag = image[idx+1:]
	}
	version := tag
	if idx := strings.Index(tag, "-"); idx >= 0 {
		version = tag[:idx]
	}
	if !bareVersionRE.MatchString(version) {
		return "", fmt.Errorf("unsupported python base image (cannot parse version): %q", image)
	}
	return version, nil
}

func selectPythonVersionForRequires(requiresPython string) string {
	for _, candidate := range pythonVersionCandidates {
		if ok, err := pythonVersionSatisfies(requiresPython, candidate); err == nil && ok {
			return candidate
		}
	}
	return ""
}

var specRE = regexp.MustCompile(`^(>=|<=|==|!=|>|<|~=)\s*([0-9]+(?:\.[0-9]+){0,2}(?:\.\*)?)\s*$`)

// pythonVersionSatisfies checks whether version satisfies a dependency-free
// subset of PEP 440's requires-python grammar: comma-separated specifiers,
// wildcard equality/inequality, and the `~=` compatible-release operator.
func pythonVersionSatisfies(requiresPython, version string) (bool, error) {
	candidate, err := parseVersion(version, 9999)
	if err != nil {
		return false, err
	}
	expanded := expandCompatibleRelease(requiresPython)
	for _, spec := range splitSpecifiers(expanded) {
		ok, err := satisfiesSpecifier(candidate, spec)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func splitSpecifiers(text string) []string {
	var out []string
	for _, s := range strings.Split(text, ",") {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func expandCompatibleRelease(text string) string {
	var expanded []string
	for _, spec := range splitSpecifiers(text) {
		m := specRE.FindStringSubmatch(spec)
		if m == nil || m[1] != "~=" {
			expanded = append(expanded, spec)
			continue
		}
		rawVersion := m[2]
		versionNoWildcard := strings.TrimSuffix(rawVersion, ".*")
		parts := strings.Split(versionNoWildcard, ".")
		var upper string
		if len(parts) <= 2 {
			major, _ := strconv.Atoi(parts[0])
			upper = fmt.Sprintf("%d.0", major+1)
		} else {
			major, _ := strconv.Atoi(parts[0])
			minor, _ := strconv.Atoi(parts[1])
			upper = fmt.Sprintf("%d.%d.0", major, minor+1)
		}
		expanded = append(expanded, ">="+versionNoWildcard, "<"+upper)
	}
	return strings.Join(expanded, ",")
}

func parseVersion(text string, patchDefault int) ([3]int, error) {
	var out [3]int
	if text == "" {
		return out, fmt.Errorf("invalid version: %q", text)
	}
	parts := strings.Split(text, ".")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, fmt.Errorf("invalid version: %q", text)
		}
		nums = append(nums, n)
	}
	if len(nums) == 0 {
		return out, fmt.Errorf("invalid version: %q", text)
	}
	out[0] = nums[0]
	if len(nums) > 1 {
		out[1] = nums[1]
	}
	if len(nums) > 2 {
		out[2] = nums[2]
	} else {
		out[2] = patchDefault
	}
	return out, nil
}

func satisfiesSpecifier(candidate [3]int, spec string) (bool, error) {
	m := specRE.FindStringSubmatch(spec)
	if m == nil {
		return false, fmt.Errorf("unsupported requires-python fragment: %q", spec)
	}
	op := m[1]
	rawVersion := m[2]
	wildcard := strings.HasSuffix(rawVersion, ".*")
	versionText := strings.TrimSuffix(rawVersion, ".*")

	if wildcard {
		prefixParts := strings.Split(versionText, ".")
		var prefix []int
		for _, p := range prefixParts {
			if p == "" {
				continue
			}
			n, err := strconv.Atoi(p)
			if err != nil {
				return false, fmt.Errorf("invalid version: %q", versionText)
			}
			prefix = append(prefix, n)
		}
		candidatePrefix := candidate[:len(prefix)]
		eq := true
		for i, p := range prefix {
			if candidatePrefix[i] != p {
				eq = false
				break
			}
		}
		switch op {
		case "==":
			return eq, nil
		case "!=":
			return !eq, nil
		default:
			return false, fmt.Errorf("unsupported wildcard operator in requires-python: %q", spec)
		}
	}

	parsed, err := parseVersion(versionText, 0)
	if err != nil {
		return false, err
	}
	dots := strings.Count(versionText, ".")

	switch op {
	case "==":
		if dots == 0 {
			return candidate[0] == parsed[0], nil
		}
		if dots == 1 {
			return candidate[0] == parsed[0] && candidate[1] == parsed[1], nil
		}
		return candidate == parsed, nil
	case "!=":
		if dots == 0 {
			return candidate[0] != parsed[0], nil
		}
		if dots == 1 {
			return candidate[0] != parsed[0] || candidate[1] != parsed[1], nil
		}
		return candidate != parsed, nil
	case ">=":
		return compareVersions(candidate, parsed) >= 0, nil
	case "<=":
		return compareVersions(candidate, parsed) <= 0, nil
	case ">":
		return compareVersions(candidate, parsed) > 0, nil
	case "<":
		return compareVersions(candidate, parsed) < 0, nil
	default:
		return false, fmt.Errorf("unsupported requires-python operator: %q", op)
	}
}

func compareVersions(a, b [3]int) int {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// ReadTargetRequiresPython reads `project.requires-python` from a target's
// pyproject.toml (PEP 621), if present. Returns "" when absent.
func ReadTargetRequiresPython(targetRepoRoot string) (string, error) {
	path := filepath.Join(targetRepoRoot, "pyproject.toml")
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return extractRequiresPythonFromToml(string(raw)), nil
}

var requiresPythonLineRE = regexp.MustCompile(`(?m)^\s*requires-python\s*=\s*"([^"]*)"\s*$`)

// extractRequiresPythonFromToml does a targeted scan for `requires-python`
// inside the `[project]` table rather than a full TOML parse, since this
// is the only field the sandbox overlay needs from pyproject.toml.
func extractRequiresPythonFromToml(text string) string {
	inProject := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inProject = trimmed == "[project]"
			continue
		}
		if !inProject {
			continue
		}
		if m := requiresPythonLineRE.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
