package prompt

import (
	"fmt"
	"strings"

	"github.com/funcgen/api/internal/models"
)

const securityClause = `Security requirements:
- Validate every input before use and reject values of the wrong type or shape.
- Guard against injection attacks (SQL, command, script and template injection); never build executable strings from raw input.
- Guard against numeric overflow and underflow, out-of-range indexes and unbounded recursion or allocation.
- Fail safely with explicit errors instead of exposing internal state.`

// Build assembles the instruction string sent to the completion service.
// The output depends only on its inputs.
func Build(req models.GenerationRequest, params []models.ParsedParameter) string {
	var b strings.Builder

	// 1. target language
	b.WriteString(fmt.Sprintf("Write a function in %s that follows the requirements below.\n", req.Language))
	b.WriteString("Structure your answer using exactly the section markers shown, in this order.\n\n")

	// 2. description section
	b.WriteString(MarkerDescription)
	b.WriteString("\nWrite a one-paragraph explanation of what the function does and how it works.\n\n")

	// 3. implementation section with the skeleton signature (names only)
	b.WriteString(MarkerImplementation)
	b.WriteString(fmt.Sprintf("\n%s(%s)\n", req.FunctionName, strings.Join(Names(params), ", ")))
	b.WriteString("Write the complete implementation of this function.\n\n")

	// 4. example section
	b.WriteString(MarkerExample)
	b.WriteString("\nWrite one short usage example that calls the function.\n\n")

	// 5. optional test cases section
	if req.TestsRequested {
		b.WriteString(fmt.Sprintf("After the example, add a %s section.\n", MarkerTestCases))
		b.WriteString(MarkerTestCases)
		b.WriteString("\nWrite comprehensive test cases covering normal cases, edge cases and error cases.\n\n")
	}

	// 6. requirements restated verbatim
	b.WriteString("Requirements:\n")
	b.WriteString(fmt.Sprintf("- Parameters: %s\n", req.Parameters))
	b.WriteString(fmt.Sprintf("- Return type: %s\n", req.ReturnType))
	b.WriteString(fmt.Sprintf("- Description: %s\n", req.Description))

	// 7. security clause
	if req.SecurityRequested {
		b.WriteString("\n")
		b.WriteString(securityClause)
		b.WriteString("\n")
	}

	// 8. closing instructions
	b.WriteString("\nImportant:\n")
	b.WriteString(fmt.Sprintf("- Only executable code may appear in the %s section.\n", MarkerImplementation))
	b.WriteString("- Do not prefix the code with the language name.\n")
	b.WriteString("- Do not wrap code in markdown code fences (```).\n")
	b.WriteString(fmt.Sprintf("- Start the %s section directly with the function declaration.\n", MarkerImplementation))
	if req.TestsRequested {
		b.WriteString(fmt.Sprintf("- The %s section must contain complete, runnable test cases.\n", MarkerTestCases))
	}

	return b.String()
}
