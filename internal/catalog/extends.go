package catalog

// resolvePersonaExtends linearizes each persona's single-parent `extends`
// chain, concatenating bodies base->derived with a blank-line separator,
// and fails with a cycle error via the visiting set per §4.C / §9.
func resolvePersonaExtends(raws map[string]rawPersona) (map[string]Persona, error) {
	resolved := map[string]Persona{}
	visiting := map[string]bool{}

	var resolveOne func(id string) (Persona, error)
	resolveOne = func(id string) (Persona, error) {
		if p, ok := resolved[id]; ok {
			return p, nil
		}
		if visiting[id] {
			return Persona{}, newErr("extends_cycle", "extends cycle detected at %s", id)
		}
		spec, ok := raws[id]
		if !ok {
			return Persona{}, newErr("unknown_extends", "unknown persona id referenced by extends: %q", id)
		}
		visiting[id] = true
		var parts []string
		if spec.extends != "" {
			base, err := resolveOne(spec.extends)
			if err != nil {
				return Persona{}, err
			}
			if base.BodyMD != "" {
				parts = append(parts, base.BodyMD)
			}
		}
		if spec.body != "" {
			parts = append(parts, spec.body)
		}
		delete(visiting, id)

		out := Persona{
			ID:         spec.id,
			Name:       spec.name,
			Extends:    spec.extends,
			BodyMD:     joinBlank(parts),
			SourcePath: spec.path,
		}
		resolved[id] = out
		return out, nil
	}

	for id := range raws {
		if _, err := resolveOne(id); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// resolveMissionExtends linearizes mission extends chains, inheriting
// execution_mode/prompt_template/report_schema/requires_* from the base
// when the derived mission leaves them unset, and validates the resolved
// execution_mode against AllowedExecutionModes.
func resolveMissionExtends(raws map[string]rawMission) (map[string]Mission, error) {
	resolved := map[string]Mission{}
	visiting := map[string]bool{}

	var resolveOne func(id string) (Mission, error)
	resolveOne = func(id string) (Mission, error) {
		if m, ok := resolved[id]; ok {
			return m, nil
		}
		if visiting[id] {
			return Mission{}, newErr("extends_cycle", "extends cycle detected at %s", id)
		}
		spec, ok := raws[id]
		if !ok {
			return Mission{}, newErr("unknown_extends", "unknown mission id referenced by extends: %q", id)
		}
		visiting[id] = true

		var base *Mission
		if spec.extends != "" {
			b, err := resolveOne(spec.extends)
			if err != nil {
				return Mission{}, err
			}
			base = &b
		}

		executionMode := firstNonEmpty(spec.executionMode, baseField(base, func(m Mission) string { return m.ExecutionMode }))
		promptTemplate := firstNonEmpty(spec.promptTemplate, baseField(base, func(m Mission) string { return m.PromptTemplate }))
		reportSchema := firstNonEmpty(spec.reportSchema, baseField(base, func(m Mission) string { return m.ReportSchema }))
		requiresShell := spec.requiresShell || (base != nil && base.RequiresShell)
		requiresEdits := spec.requiresEdits || (base != nil && base.RequiresEdits)

		if executionMode == "" {
			return Mission{}, newErr("missing_execution_mode", "missing execution_mode in mission %q (%s)", id, spec.path)
		}
		if !AllowedExecutionModes[executionMode] {
			return Mission{}, newErr("unsupported_execution_mode", "unsupported execution_mode %q in resolved mission %q", executionMode, id)
		}
		if promptTemplate == "" {
			return Mission{}, newErr("missing_prompt_template", "missing prompt_template in mission %q (%s)", id, spec.path)
		}
		if reportSchema == "" {
			return Mission{}, newErr("missing_report_schema", "missing report_schema in mission %q (%s)", id, spec.path)
		}

		var bodyParts []string
		if base != nil && base.BodyMD != "" {
			bodyParts = append(bodyParts, base.BodyMD)
		}
		if spec.body != "" {
			bodyParts = append(bodyParts, spec.body)
		}

		var baseTags []string
		if base != nil {
			baseTags = base.Tags
		}

		delete(visiting, id)

		out := Mission{
			ID:             spec.id,
			Name:           spec.name,
			Extends:        spec.extends,
			Tags:           mergeTags(baseTags, spec.tags),
			ExecutionMode:  executionMode,
			PromptTemplate: promptTemplate,
			ReportSchema:   reportSchema,
			BodyMD:         joinBlank(bodyParts),
			SourcePath:     spec.path,
			RequiresShell:  requiresShell,
			RequiresEdits:  requiresEdits,
		}
		resolved[id] = out
		return out, nil
	}

	for id := range raws {
		if _, err := resolveOne(id); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func joinBlank(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func baseField(base *Mission, get func(Mission) string) string {
	if base == nil {
		return ""
	}
	return get(*base)
}
