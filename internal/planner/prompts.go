package planner

// analysisPrompt asks for a structured classification of the task.
// Arguments: task description, JSON context.
const analysisPrompt = `Analyze this software development task.

Task: %s

Additional context:
%s

Return ONLY a JSON object with this exact structure (no other text):
{
  "type": "kind of task (backend, frontend, fullstack, infra, cli, data, ...)",
  "complexity": "low|medium|high|expert",
  "mainGoal": "the main goal in one sentence",
  "keyRequirements": ["req1", "req2", "req3"],
  "technologiesSuggested": ["tech1", "tech2"],
  "potentialChallenges": ["challenge1", "challenge2"],
  "estimatedSteps": 5
}`

// subtasksPrompt asks for the executable breakdown.
// Arguments: task description, type, complexity, main goal, technologies, max subtasks.
const subtasksPrompt = `Break this task down into specific, executable subtasks.

Main task: %s

Analysis:
- Type: %s
- Complexity: %s
- Goal: %s
- Technologies: %s

Return ONLY a JSON array with this exact structure (no other text):
[
  {
    "id": "subtask-1",
    "title": "Clear subtask title",
    "description": "Detailed description of what to do",
    "type": "research|code|test|document|deploy",
    "complexity": "low|medium|high",
    "estimatedTime": 30,
    "prerequisites": ["ids of subtasks that must finish first"],
    "deliverables": ["what this subtask must produce"],
    "verificationCriteria": ["how to verify it is complete"]
  }
]

Rules:
- Each subtask must be specific and executable on its own
- Include research where knowledge is missing
- Include tests and documentation
- prerequisites may only reference ids from this list; use [] when there are none
- Never create circular prerequisites
- At most %d subtasks`
