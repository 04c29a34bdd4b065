package dispatch

// codePrompt arguments: title, description, context JSON, recalled knowledge,
// deliverables, verification criteria.
const codePrompt = `Write the code for this task.

Title: %s
Description: %s

Project context:
%s

Relevant knowledge:
%s

Deliverables:
%s

Verification criteria:
%s

Produce complete, working code with brief comments, and basic tests where they apply.

Return ONLY a JSON object with this exact structure (no other text):
{
  "files": [
    {
      "path": "relative/path/to/file",
      "content": "full file content",
      "description": "what this file does"
    }
  ],
  "explanation": "how the solution works",
  "nextSteps": ["step1", "step2"]
}`

// documentPrompt arguments: title, description, gathered info JSON, deliverables.
const documentPrompt = `Write professional documentation for:

Title: %s
Description: %s

Gathered information:
%s

Deliverables:
%s

Write Markdown that covers:
1. Title and description
2. Installation or setup, if applicable
3. Usage and examples
4. Main API or commands
5. Code examples
6. Important notes

Respond with the Markdown content only, no JSON.`

// genericPrompt arguments: title, description, type, context JSON.
const genericPrompt = `Analyze this task and decide how to carry it out.

Title: %s
Description: %s
Type: %s

Context:
%s

Which concrete steps should be taken? Respond with an action plan.`
