package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullReply = `[DESCRIPTION]
Adds two numbers and returns the sum.
[IMPLEMENTATION]
` + "```javascript" + `
function add(x, y) {
  return x + y;
}
` + "```" + `
[EXAMPLE]
` + "```js" + `
console.log(add(1, 2));
` + "```" + `
[TEST_CASES]
assert(add(1, 2) === 3);
assert(add(-1, 1) === 0);`

func TestSplitAllMarkers(t *testing.T) {
	res := Split(fullReply, true)

	assert.Equal(t, "Adds two numbers and returns the sum.", res.Description)
	assert.Equal(t, "function add(x, y) {\n  return x + y;\n}", res.Implementation)
	// fences are only stripped from the implementation
	assert.Equal(t, "```js\nconsole.log(add(1, 2));\n```", res.Example)
	require.NotNil(t, res.TestCases)
	assert.Equal(t, "assert(add(1, 2) === 3);\nassert(add(-1, 1) === 0);", *res.TestCases)
	assert.Nil(t, res.SyntaxStatus)
}

func TestSplitWithoutTestsRunsExampleToEnd(t *testing.T) {
	res := Split(fullReply, false)

	assert.Nil(t, res.TestCases)
	assert.Contains(t, res.Example, "console.log(add(1, 2));")
	assert.Contains(t, res.Example, "[TEST_CASES]")
}

func TestSplitMissingExampleMarker(t *testing.T) {
	reply := "[DESCRIPTION]\nDoubles a value.\n[IMPLEMENTATION]\nfunction double(x) { return x * 2; }\n"

	res := Split(reply, false)

	assert.Equal(t, "Doubles a value.", res.Description)
	assert.Equal(t, "function double(x) { return x * 2; }", res.Implementation)
	assert.Equal(t, "", res.Example)
}

func TestSplitMissingExampleKeepsDescriptionAndImplementation(t *testing.T) {
	reply := "[DESCRIPTION]\nDoubles a value.\n[IMPLEMENTATION]\nfunction double(x) { return x * 2; }\n[TEST_CASES]\nassert(double(2) === 4);"

	res := Split(reply, true)

	assert.Equal(t, "Doubles a value.", res.Description)
	assert.Equal(t, "function double(x) { return x * 2; }", res.Implementation)
	assert.Equal(t, "", res.Example)
	require.NotNil(t, res.TestCases)
	assert.Equal(t, "assert(double(2) === 4);", *res.TestCases)
}

func TestSplitGarbledReply(t *testing.T) {
	for _, reply := range []string{"", "just some prose", "[EXAMPLE]", "[IMPLEMENTATION][DESCRIPTION]"} {
		res := Split(reply, true)
		require.NotNil(t, res)
		assert.Equal(t, "", res.Description)
		assert.Equal(t, "", res.Implementation)
		require.NotNil(t, res.TestCases)
		assert.Equal(t, "", *res.TestCases)
	}
}

func TestSplitMarkersOutOfOrder(t *testing.T) {
	reply := "[EXAMPLE]\nfoo()\n[DESCRIPTION]\nDoes foo.\n[IMPLEMENTATION]\nfunction foo() {}\n"

	res := Split(reply, false)

	assert.Equal(t, "Does foo.", res.Description)
	// the example marker only appears before it, so the implementation runs to the end
	assert.Equal(t, "function foo() {}", res.Implementation)
	assert.Contains(t, res.Example, "foo()")
}

func TestSplitSectionEndsAtNearestFollowingMarker(t *testing.T) {
	tests := map[string]struct {
		reply          string
		tests          bool
		description    string
		implementation string
		example        string
	}{
		"missing implementation": {
			reply:       "[DESCRIPTION]\nDoubles a value.\n[EXAMPLE]\ndouble(2);",
			description: "Doubles a value.",
			example:     "double(2);",
		},
		"only description and test cases": {
			reply:       "[DESCRIPTION]\nDoubles a value.\n[TEST_CASES]\nassert(double(2) === 4);",
			tests:       true,
			description: "Doubles a value.",
		},
		"missing description closer": {
			reply:       "[DESCRIPTION]\nDoubles a value.",
			description: "Doubles a value.",
		},
		"fenced implementation without example": {
			reply:          "[IMPLEMENTATION]\n```js\nfunction double(x) { return x * 2; }\n```\n",
			implementation: "function double(x) { return x * 2; }",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res := Split(tt.reply, tt.tests)

			assert.Equal(t, tt.description, res.Description)
			assert.Equal(t, tt.implementation, res.Implementation)
			assert.Equal(t, tt.example, res.Example)
		})
	}
}

func TestSplitTrimsEverySection(t *testing.T) {
	reply := "[DESCRIPTION]\n\n  Doubles x.  \n[IMPLEMENTATION]\n\tfunction double(x) { return x * 2; }\n\n[EXAMPLE]\n  double(2);\n[TEST_CASES]\n\n  assert(double(2) === 4);\n\n"

	withTests := Split(reply, true)
	assert.Equal(t, "Doubles x.", withTests.Description)
	assert.Equal(t, "function double(x) { return x * 2; }", withTests.Implementation)
	assert.Equal(t, "double(2);", withTests.Example)
	require.NotNil(t, withTests.TestCases)
	assert.Equal(t, "assert(double(2) === 4);", *withTests.TestCases)

	withoutTests := Split(reply, false)
	assert.Equal(t, "double(2);\n[TEST_CASES]\n\n  assert(double(2) === 4);", withoutTests.Example)
}

func TestCleanCode(t *testing.T) {
	tests := map[string]string{
		"```javascript\nlet a = 1;\n```": "let a = 1;",
		"```\nlet a = 1;\n```":           "let a = 1;",
		"  let a = 1;  \n":               "let a = 1;",
		"```js let a = 1;```":            "let a = 1;",
		"```typescript\r\nlet a = 1;\r\n```\r\n": "let a = 1;",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanCode(in), "input %q", in)
	}
}
