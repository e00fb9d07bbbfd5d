package runbook

import "fmt"

// CheckRecursion evaluates the inbound recursion stack against runbook
// filename before execution begins. It never touches shared in-process
// state: the stack travels entirely on the wire.
func CheckRecursion(stack []string, filename string, maxDepth int) (*Error, []string) {
	for _, f := range stack {
		if f == filename {
			return NewError(KindRecursionDetected,
				fmt.Sprintf("recursion detected: %q already present in stack %v", filename, stack)), stack
		}
	}

	if len(stack) >= maxDepth {
		return NewError(KindRecursionDepthExceeded,
			fmt.Sprintf("recursion depth %d meets or exceeds limit %d", len(stack), maxDepth)), stack
	}

	extended := make([]string, len(stack), len(stack)+1)
	copy(extended, stack)
	extended = append(extended, filename)
	return nil, extended
}
