package classify_test

import (
	"fmt"

	"github.com/jonwraymond/calccache/classify"
)

func ExampleClassifier_Explain() {
	c := classify.NewDefault()

	m := c.Explain("Could not converge SCF iterations in 100 iterations.", "")
	fmt.Println(m.Category, m.Source, m.Rule)
	// Output: convergence pattern scf-convergence
}
