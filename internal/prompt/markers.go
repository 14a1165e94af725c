package prompt

// Section markers shared with the sections package. The oracle is told to emit
// them verbatim; changing one here means changing how replies are split.
const (
	MarkerDescription    = "[DESCRIPTION]"
	MarkerImplementation = "[IMPLEMENTATION]"
	MarkerExample        = "[EXAMPLE]"
	MarkerTestCases      = "[TEST_CASES]"
)
