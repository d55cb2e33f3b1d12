package assembly

import (
	"github.com/temirov/pktables/internal/table"
)

// Options configures Reconcile for one pipeline.
type Options struct {
	// Vocabulary is the canonical column set, in output order.
	Vocabulary []string
	Rules      Rules
	// ValueColumns are the columns a row needs at least one value in.
	ValueColumns []string
	// GroupKey keeps rows of the same key together in first-seen order.
	GroupKey string
	// MergeIdentity enables same-group merging on these columns.
	MergeIdentity []string
}

// Reconcile assembles the blocks and normalizes the result.
func Reconcile(blocks []Block, options Options) (table.Table, error) {
	assembled, err := Assemble(blocks)
	if err != nil {
		return table.Table{}, err
	}
	return Cleanup(assembled, options)
}

// Cleanup is Reconcile after assembly.
func Cleanup(assembled table.Table, options Options) (table.Table, error) {
	canonical := CanonicalizeHeaders(assembled, options.Vocabulary, HeaderCutoff)
	cleaned := Filter(Cascade(canonical, options.Rules), options.ValueColumns)
	ordered, err := RestoreOrder(cleaned, options.GroupKey)
	if err != nil {
		return table.Table{}, err
	}
	if len(options.MergeIdentity) > 0 {
		ordered = MergeGroups(ordered, options.MergeIdentity)
	}
	return OrderColumns(ordered, options.Vocabulary), nil
}
