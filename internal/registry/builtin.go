package registry

import "github.com/switchyard-dev/switchyard/internal/core"

// builtinProcedures returns the full built-in procedure set. Instruction
// references are paths into the embedded prompt library; platform variants
// share base prompts and override only the steps that differ.
func builtinProcedures() []*core.Procedure {
	return []*core.Procedure{
		{
			Name:        "answer",
			Description: "Research a question against the codebase and post a direct answer.",
			Steps: []core.StepDefinition{
				{
					Name:                  "research",
					InstructionRef:        "answer/research.md",
					Description:           "Gather the facts needed to answer the question.",
					SuppressOutputPosting: core.BoolFlag(true),
				},
				{
					Name:           "respond",
					InstructionRef: "answer/respond.md",
					Description:    "Compose and post the final answer.",
					SingleTurn:     core.BoolFlag(true),
				},
			},
		},
		{
			Name:        "document",
			Description: "Investigate current behavior and update the documentation to match.",
			Steps: []core.StepDefinition{
				{
					Name:           "investigate",
					InstructionRef: "document/investigate.md",
					Description:    "Establish what the code actually does today.",
				},
				{
					Name:           "write-docs",
					InstructionRef: "document/write-docs.md",
					Description:    "Write or update the affected documentation.",
				},
				{
					Name:           "open-pr",
					InstructionRef: "document/open-pr.md",
					Description:    "Open a pull request with the documentation changes.",
				},
			},
		},
		{
			Name:        "implement",
			Description: "Make a code change end to end: analyze, plan, implement, verify, and open a pull request.",
			Steps: []core.StepDefinition{
				{
					Name:           "analyze",
					InstructionRef: "implement/analyze.md",
					Description:    "Understand the request and locate the affected code.",
				},
				{
					Name:           "plan",
					InstructionRef: "implement/plan.md",
					Description:    "Decide the approach before touching code.",
				},
				{
					Name:           "implement",
					InstructionRef: "implement/implement.md",
					Description:    "Apply the planned change.",
				},
				{
					Name:               "verify",
					InstructionRef:     "implement/verify.md",
					Description:        "Run the project checks and report a structured verdict.",
					UsesValidationLoop: core.BoolFlag(true),
				},
				{
					Name:           "fix-findings",
					InstructionRef: "implement/fix-findings.md",
					Description:    "Address failures reported by the verification step.",
				},
				{
					Name:           "open-pr",
					InstructionRef: "implement/open-pr.md",
					Description:    "Open a pull request with the change.",
				},
			},
		},
		{
			Name:        "debug",
			Description: "Reproduce and diagnose a defect, then apply the fix after human sign-off.",
			Steps: []core.StepDefinition{
				{
					Name:           "reproduce",
					InstructionRef: "debug/reproduce.md",
					Description:    "Reproduce the reported failure.",
				},
				{
					Name:           "diagnose",
					InstructionRef: "debug/diagnose.md",
					Description:    "Identify the root cause and propose a fix.",
				},
				{
					Name:             "apply-fix",
					InstructionRef:   "debug/apply-fix.md",
					Description:      "Apply the fix after human sign-off.",
					RequiresApproval: core.BoolFlag(true),
				},
				{
					Name:           "verify",
					InstructionRef: "debug/verify.md",
					Description:    "Confirm the failure no longer reproduces.",
				},
			},
		},
		{
			Name:        "orchestrate",
			Description: "Break a large request into independent subtasks and file them as issues.",
			Steps: []core.StepDefinition{
				{
					Name:             "decompose",
					InstructionRef:   "orchestrate/decompose.md",
					Description:      "Split the request into self-contained subtasks.",
					DisallowAllTools: core.BoolFlag(true),
				},
				{
					Name:           "file-subtasks",
					InstructionRef: "orchestrate/file-subtasks.md",
					Description:    "File one tracking issue per subtask.",
				},
			},
		},
		{
			Name:        "manual-test",
			Description: "Draft a manual test plan for the change and walk through it.",
			Steps: []core.StepDefinition{
				{
					Name:              "draft-test-plan",
					InstructionRef:    "manual-test/draft-test-plan.md",
					Description:       "Write the manual test plan.",
					SkipOutputPosting: core.BoolFlag(true),
					DisallowedTools:   []string{"Write", "Edit"},
				},
				{
					Name:           "execute-checks",
					InstructionRef: "manual-test/execute-checks.md",
					Description:    "Execute the plan and report results.",
				},
			},
		},
		{
			Name:        "release",
			Description: "Prepare release notes, tag the release, and publish it.",
			Steps: []core.StepDefinition{
				{
					Name:           "prepare-notes",
					InstructionRef: "release/prepare-notes.md",
					Description:    "Draft the release notes from merged changes.",
				},
				{
					Name:           "tag-release",
					InstructionRef: "release/tag-release.md",
					Description:    "Create and push the release tag.",
				},
				{
					Name:           "publish",
					InstructionRef: "release/publish.md",
					Description:    "Publish the GitHub release with the prepared notes.",
				},
			},
		},
		{
			Name:        "implement-gitlab",
			Description: "Make a code change end to end and open a GitLab merge request.",
			Steps: []core.StepDefinition{
				{
					Name:           "analyze",
					InstructionRef: "implement/analyze.md",
					Description:    "Understand the request and locate the affected code.",
				},
				{
					Name:           "plan",
					InstructionRef: "implement/plan.md",
					Description:    "Decide the approach before touching code.",
				},
				{
					Name:           "implement",
					InstructionRef: "implement/implement.md",
					Description:    "Apply the planned change.",
				},
				{
					Name:               "verify",
					InstructionRef:     "implement/verify.md",
					Description:        "Run the project checks and report a structured verdict.",
					UsesValidationLoop: core.BoolFlag(true),
				},
				{
					Name:           "fix-findings",
					InstructionRef: "implement/fix-findings.md",
					Description:    "Address failures reported by the verification step.",
				},
				{
					Name:           "open-mr",
					InstructionRef: "implement-gitlab/open-mr.md",
					Description:    "Open a merge request with the change.",
				},
			},
		},
		{
			Name:        "release-gitlab",
			Description: "Prepare release notes, tag the release, and publish it on GitLab.",
			Steps: []core.StepDefinition{
				{
					Name:           "prepare-notes",
					InstructionRef: "release/prepare-notes.md",
					Description:    "Draft the release notes from merged changes.",
				},
				{
					Name:           "tag-release",
					InstructionRef: "release/tag-release.md",
					Description:    "Create and push the release tag.",
				},
				{
					Name:           "publish",
					InstructionRef: "release-gitlab/publish.md",
					Description:    "Publish the GitLab release with the prepared notes.",
				},
			},
		},
	}
}
